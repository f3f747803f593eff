package services

import (
	"testing"
	"time"

	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"

	"github.com/stretchr/testify/require"
)

var reachedAt = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func TestSynthesizeResultStandardRebuildsPayload(t *testing.T) {
	tally := TallyVotes([]entities.Vote{
		{VoteID: 1, OrientationData: "[1,2,3,4,5,6,7,8]"},
		{VoteID: 2, OrientationData: "[8, 7, 6, 5, 4, 3, 2, 1]"},
	})

	result, err := SynthesizeResult(42, tally, reachedAt)
	require.NoError(t, err)
	require.Equal(t, `{"points":[1,2,3,4,5,6,7,8],"consensus":true}`, result.FinalOrientationData)
	require.Equal(t, 2, result.SupportingVotes)
	require.False(t, result.NonStandard)
	require.False(t, result.NeedsRecrop)

	points, ok := DecodeFinalOrientation(result.FinalOrientationData)
	require.True(t, ok)
	require.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, points)
}

func TestSynthesizeResultEmptyStandardSelection(t *testing.T) {
	tally := TallyVotes([]entities.Vote{
		{VoteID: 1, OrientationData: "[]", NeedsRecrop: true},
		{VoteID: 2, OrientationData: "[]", NeedsRecrop: true},
	})

	result, err := SynthesizeResult(5, tally, reachedAt)
	require.NoError(t, err)
	require.Equal(t, `{"points":[],"consensus":true}`, result.FinalOrientationData)
	require.True(t, result.NeedsRecrop)
}

func TestSynthesizeResultNonStandardUsesSentinel(t *testing.T) {
	tally := TallyVotes([]entities.Vote{
		{VoteID: 1, NonStandard: true, OrientationData: "garbage"},
		{VoteID: 2, NonStandard: true, OrientationData: "[1,2,3]"},
	})

	result, err := SynthesizeResult(3, tally, reachedAt)
	require.NoError(t, err)
	require.Equal(t, entities.NonStandardSentinel, result.FinalOrientationData)
	require.True(t, result.NonStandard)
	require.True(t, result.NonStandardConfirmed)
	_, ok := DecodeFinalOrientation(result.FinalOrientationData)
	require.False(t, ok)
}

func TestSynthesizeResultUnparsedKeepsRawPayload(t *testing.T) {
	tally := TallyVotes([]entities.Vote{
		{VoteID: 1, OrientationData: "{\"legacy\":true}"},
		{VoteID: 2, OrientationData: "{\"legacy\":true}"},
	})

	result, err := SynthesizeResult(8, tally, reachedAt)
	require.NoError(t, err)
	require.Equal(t, "{\"legacy\":true}", result.FinalOrientationData)
}

func TestSynthesizeResultRecropNeedsQuorumOfSupporters(t *testing.T) {
	tally := TallyVotes([]entities.Vote{
		{VoteID: 1, OrientationData: "[1]", NeedsRecrop: true},
		{VoteID: 2, OrientationData: "[1]"},
		{VoteID: 3, OrientationData: "[2]", NeedsRecrop: true},
	})

	result, err := SynthesizeResult(1, tally, reachedAt)
	require.NoError(t, err)
	require.False(t, result.NeedsRecrop)
	require.Equal(t, 2, result.SupportingVotes)
	require.Equal(t, 3, result.TotalVotes)
}

func TestSynthesizeResultRejectsTallyWithoutWinner(t *testing.T) {
	_, err := SynthesizeResult(1, entities.Tally{TotalVotes: 2}, reachedAt)
	require.Error(t, err)
}

func TestSynthesizeResultIsDeterministic(t *testing.T) {
	votes := []entities.Vote{
		{VoteID: 1, OrientationData: "[4,3]"},
		{VoteID: 2, OrientationData: "[3,4]"},
	}
	first, err := SynthesizeResult(1, TallyVotes(votes), reachedAt)
	require.NoError(t, err)
	second, err := SynthesizeResult(1, TallyVotes(votes), reachedAt.Add(time.Hour))
	require.NoError(t, err)

	require.Equal(t, first.FinalOrientationData, second.FinalOrientationData)
	require.Equal(t, first.SupportingVotes, second.SupportingVotes)
}
