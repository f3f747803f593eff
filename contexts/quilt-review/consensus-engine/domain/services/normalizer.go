package services

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"

	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"
)

// NormalizeVote converts a vote into its agreement pattern.
//
// Non-standard votes collapse to a single pattern regardless of point data.
// Standard votes whose payload is a JSON array of integers become a sorted
// point list, so click order does not matter. Any other payload is kept
// verbatim as an unparsed pattern; it can still agree with a byte-identical
// payload but is never repaired.
func NormalizeVote(vote entities.Vote) entities.Pattern {
	if vote.NonStandard {
		return entities.NonStandardPattern()
	}
	points, ok := ParsePoints(vote.OrientationData)
	if !ok {
		return entities.UnparsedPattern(vote.OrientationData)
	}
	sort.Ints(points)
	return entities.StandardPattern(points)
}

// ParsePoints decodes a serialized point-id list. Only a JSON array whose
// elements are all integers is accepted.
func ParsePoints(raw string) ([]int, bool) {
	decoder := json.NewDecoder(bytes.NewReader([]byte(raw)))
	decoder.UseNumber()

	var items []any
	if err := decoder.Decode(&items); err != nil {
		return nil, false
	}
	if decoder.More() {
		return nil, false
	}
	// "null" decodes into a nil slice without error.
	if items == nil {
		return nil, false
	}

	points := make([]int, 0, len(items))
	for _, item := range items {
		number, ok := item.(json.Number)
		if !ok {
			return nil, false
		}
		value, err := strconv.Atoi(number.String())
		if err != nil {
			return nil, false
		}
		points = append(points, value)
	}
	return points, true
}
