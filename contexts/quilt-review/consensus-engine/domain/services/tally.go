package services

import (
	"sort"

	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"
)

// TallyVotes groups votes by normalized pattern and selects the leader.
//
// Votes are visited in (created_at, vote_id) order and groups keep the order
// in which their first vote was seen. A group becomes leader only if it meets
// the quorum and strictly exceeds the current leader, so on a tie the
// earliest-seen pattern wins.
func TallyVotes(votes []entities.Vote) entities.Tally {
	ordered := orderVotes(votes)

	index := make(map[string]int, len(ordered))
	groups := make([]entities.PatternGroup, 0, len(ordered))
	for _, vote := range ordered {
		pattern := NormalizeVote(vote)
		key := pattern.Key()
		position, found := index[key]
		if !found {
			position = len(groups)
			index[key] = position
			groups = append(groups, entities.PatternGroup{
				Pattern:     pattern,
				FirstVoteID: vote.VoteID,
			})
		}
		groups[position].Count++
		if vote.NeedsRecrop {
			groups[position].RecropVotes++
		}
	}

	tally := entities.Tally{
		TotalVotes: len(ordered),
		Groups:     groups,
	}
	if len(ordered) < entities.QuorumThreshold {
		return tally
	}

	leader := -1
	maxCount := 0
	for i, group := range groups {
		if group.Count >= entities.QuorumThreshold && group.Count > maxCount {
			leader = i
			maxCount = group.Count
		}
	}
	if leader >= 0 {
		winner := groups[leader]
		tally.Winner = &winner
	}
	return tally
}

// OutcomeOf maps a tally onto the per-block state.
func OutcomeOf(tally entities.Tally) entities.Outcome {
	switch {
	case tally.TotalVotes < entities.QuorumThreshold:
		return entities.OutcomeInsufficient
	case tally.Winner == nil:
		return entities.OutcomeNoAgreement
	default:
		return entities.OutcomeConsensusReached
	}
}

func orderVotes(votes []entities.Vote) []entities.Vote {
	ordered := append([]entities.Vote(nil), votes...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].VoteID < ordered[j].VoteID
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})
	return ordered
}
