package services

import (
	"encoding/json"
	"errors"
	"time"

	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"
)

var errNoWinner = errors.New("tally has no quorum-backed pattern")

// OrientationPayload is the stored shape of a standard consensus.
type OrientationPayload struct {
	Points    []int `json:"points"`
	Consensus bool  `json:"consensus"`
}

// SynthesizeResult builds the canonical record for a tally winner.
//
// Standard payloads are rebuilt from the normalized pattern, never from a
// vote's raw string. Recrop is agreed only when a quorum of the supporting
// votes flagged it. VoteCount is the number of supporting votes.
func SynthesizeResult(blockID int64, tally entities.Tally, reachedAt time.Time) (entities.ConsensusResult, error) {
	if tally.Winner == nil {
		return entities.ConsensusResult{}, errNoWinner
	}
	winner := *tally.Winner

	result := entities.ConsensusResult{
		BlockID:         blockID,
		Pattern:         winner.Pattern,
		NeedsRecrop:     winner.RecropVotes >= entities.QuorumThreshold,
		SupportingVotes: winner.Count,
		TotalVotes:      tally.TotalVotes,
		ReachedAt:       reachedAt.UTC(),
	}

	switch winner.Pattern.Kind {
	case entities.PatternNonStandard:
		result.NonStandard = true
		result.NonStandardConfirmed = true
		result.FinalOrientationData = entities.NonStandardSentinel
	case entities.PatternStandard:
		points := append([]int{}, winner.Pattern.Points...)
		payload, err := json.Marshal(OrientationPayload{Points: points, Consensus: true})
		if err != nil {
			return entities.ConsensusResult{}, err
		}
		result.FinalOrientationData = string(payload)
	default:
		result.FinalOrientationData = winner.Pattern.Raw
	}
	return result, nil
}

// DecodeFinalOrientation reads the point list back out of a stored standard
// payload.
func DecodeFinalOrientation(data string) ([]int, bool) {
	if data == "" || data == entities.NonStandardSentinel {
		return nil, false
	}
	var payload OrientationPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return nil, false
	}
	if !payload.Consensus || payload.Points == nil {
		return nil, false
	}
	return payload.Points, true
}
