package services

import (
	"testing"

	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"

	"github.com/stretchr/testify/require"
)

func TestNormalizeVoteIgnoresClickOrder(t *testing.T) {
	first := NormalizeVote(entities.Vote{OrientationData: "[3,1,4,2,5,6,7,8]"})
	second := NormalizeVote(entities.Vote{OrientationData: "[8,7,6,5,4,3,2,1]"})

	require.Equal(t, entities.PatternStandard, first.Kind)
	require.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, first.Points)
	require.Equal(t, first.Key(), second.Key())
}

func TestNormalizeVoteNonStandardIgnoresPointData(t *testing.T) {
	garbage := NormalizeVote(entities.Vote{NonStandard: true, OrientationData: "{not json"})
	points := NormalizeVote(entities.Vote{NonStandard: true, OrientationData: "[1,2,3]"})

	require.Equal(t, entities.PatternNonStandard, garbage.Kind)
	require.Equal(t, garbage.Key(), points.Key())
}

func TestNormalizeVoteStandardNeverMatchesNonStandard(t *testing.T) {
	standard := NormalizeVote(entities.Vote{OrientationData: "[]"})
	nonStandard := NormalizeVote(entities.Vote{NonStandard: true, OrientationData: "[]"})

	require.NotEqual(t, standard.Key(), nonStandard.Key())
}

func TestNormalizeVoteKeepsDuplicates(t *testing.T) {
	pattern := NormalizeVote(entities.Vote{OrientationData: "[2,1,2]"})

	require.Equal(t, []int{1, 2, 2}, pattern.Points)
	require.NotEqual(t, NormalizeVote(entities.Vote{OrientationData: "[1,2]"}).Key(), pattern.Key())
}

func TestNormalizeVoteMalformedPayloadsStayVerbatim(t *testing.T) {
	cases := []string{
		"",
		"null",
		"{\"points\":[1,2]}",
		"[1.5,2]",
		"[\"a\",\"b\"]",
		"[1,2] [3]",
		"not json",
	}
	for _, raw := range cases {
		t.Run(raw, func(t *testing.T) {
			pattern := NormalizeVote(entities.Vote{OrientationData: raw})
			require.Equal(t, entities.PatternUnparsed, pattern.Kind)
			require.Equal(t, raw, pattern.Raw)
		})
	}
}

func TestNormalizeVoteUnparsedOnlyMatchesIdenticalBytes(t *testing.T) {
	first := NormalizeVote(entities.Vote{OrientationData: "oops"})
	same := NormalizeVote(entities.Vote{OrientationData: "oops"})
	other := NormalizeVote(entities.Vote{OrientationData: "oops "})

	require.Equal(t, first.Key(), same.Key())
	require.NotEqual(t, first.Key(), other.Key())
}
