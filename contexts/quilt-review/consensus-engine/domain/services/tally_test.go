package services

import (
	"testing"
	"time"

	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"

	"github.com/stretchr/testify/require"
)

func standardVote(id int64, at time.Time, points string) entities.Vote {
	return entities.Vote{VoteID: id, BlockID: 1, OrientationData: points, CreatedAt: at}
}

func TestTallyVotesBelowQuorumHasNoWinner(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tally := TallyVotes([]entities.Vote{standardVote(1, base, "[1,2]")})

	require.Equal(t, 1, tally.TotalVotes)
	require.Nil(t, tally.Winner)
	require.Equal(t, entities.OutcomeInsufficient, OutcomeOf(tally))
}

func TestTallyVotesTwoOfThreeAgree(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tally := TallyVotes([]entities.Vote{
		standardVote(1, base, "[1,2,3]"),
		standardVote(2, base.Add(time.Second), "[4,5,6]"),
		standardVote(3, base.Add(2*time.Second), "[3,2,1]"),
	})

	require.NotNil(t, tally.Winner)
	require.Equal(t, 2, tally.Winner.Count)
	require.Equal(t, []int{1, 2, 3}, tally.Winner.Pattern.Points)
	require.Equal(t, 3, tally.TotalVotes)
	require.Len(t, tally.Groups, 2)
}

func TestTallyVotesNoAgreement(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tally := TallyVotes([]entities.Vote{
		standardVote(1, base, "[1]"),
		standardVote(2, base, "[2]"),
		standardVote(3, base, "[3]"),
		{VoteID: 4, NonStandard: true, CreatedAt: base},
	})

	require.Nil(t, tally.Winner)
	require.Equal(t, entities.OutcomeNoAgreement, OutcomeOf(tally))
}

func TestTallyVotesTieGoesToEarliestSeenPattern(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// Supplied out of order; ordering is by created_at then vote id.
	tally := TallyVotes([]entities.Vote{
		standardVote(4, base.Add(3*time.Second), "[9]"),
		standardVote(2, base.Add(time.Second), "[9]"),
		standardVote(3, base.Add(2*time.Second), "[5]"),
		standardVote(1, base, "[5]"),
	})

	require.NotNil(t, tally.Winner)
	require.Equal(t, []int{5}, tally.Winner.Pattern.Points)
	require.Equal(t, int64(1), tally.Winner.FirstVoteID)
}

func TestTallyVotesSameTimestampOrdersByVoteID(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tally := TallyVotes([]entities.Vote{
		standardVote(20, at, "[1]"),
		standardVote(10, at, "[2]"),
		standardVote(21, at, "[1]"),
		standardVote(11, at, "[2]"),
	})

	require.Equal(t, []int{2}, tally.Winner.Pattern.Points)
}

func TestTallyVotesCountsRecropFlagsPerGroup(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	votes := []entities.Vote{
		{VoteID: 1, OrientationData: "[1,2]", NeedsRecrop: true, CreatedAt: at},
		{VoteID: 2, OrientationData: "[2,1]", NeedsRecrop: false, CreatedAt: at},
		{VoteID: 3, OrientationData: "[2,1]", NeedsRecrop: true, CreatedAt: at},
	}
	tally := TallyVotes(votes)

	require.Equal(t, 3, tally.Winner.Count)
	require.Equal(t, 2, tally.Winner.RecropVotes)
}
