package entities

import (
	"strconv"
	"strings"
	"time"
)

// Vote is one volunteer submission for a block. Votes are append-only.
type Vote struct {
	VoteID          int64
	BlockID         int64
	OrientationData string
	NeedsRecrop     bool
	NonStandard     bool
	IPAddress       string
	UserSession     string
	CreatedAt       time.Time
}

type PatternKind string

const (
	PatternStandard    PatternKind = "standard"
	PatternNonStandard PatternKind = "non_standard"
	// PatternUnparsed holds votes whose orientation payload could not be
	// decoded into a point list; they only agree with byte-identical payloads.
	PatternUnparsed PatternKind = "unparsed"
)

// Pattern is the normalized, order-independent content of a vote.
// Exactly one of Points (standard) or Raw (unparsed) is meaningful.
type Pattern struct {
	Kind   PatternKind
	Points []int
	Raw    string
}

func StandardPattern(sortedPoints []int) Pattern {
	return Pattern{Kind: PatternStandard, Points: sortedPoints}
}

func NonStandardPattern() Pattern {
	return Pattern{Kind: PatternNonStandard}
}

func UnparsedPattern(raw string) Pattern {
	return Pattern{Kind: PatternUnparsed, Raw: raw}
}

// Key is the agreement key: two votes agree iff their keys are equal.
func (p Pattern) Key() string {
	switch p.Kind {
	case PatternNonStandard:
		return "nonstandard"
	case PatternStandard:
		parts := make([]string, 0, len(p.Points))
		for _, point := range p.Points {
			parts = append(parts, strconv.Itoa(point))
		}
		return "standard:" + strings.Join(parts, ",")
	default:
		return "raw:" + p.Raw
	}
}
