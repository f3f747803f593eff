package entities

import "time"

// NonStandardSentinel is stored as final orientation data for blocks that
// reached consensus on a non-standard layout.
const NonStandardSentinel = "NON_STANDARD_BLOCK"

// QuorumThreshold is the minimum number of identical votes for consensus.
const QuorumThreshold = 2

type Outcome string

const (
	OutcomeInsufficient     Outcome = "insufficient"
	OutcomeNoAgreement      Outcome = "no_agreement"
	OutcomeConsensusReached Outcome = "consensus_reached"
)

// PatternGroup is one tally bucket.
type PatternGroup struct {
	Pattern     Pattern
	Count       int
	RecropVotes int
	FirstVoteID int64
}

// Tally is the grouping of a block's votes in first-seen order plus the
// quorum-backed leader, if any.
type Tally struct {
	TotalVotes int
	Groups     []PatternGroup
	Winner     *PatternGroup
}

// ConsensusResult is the canonical record persisted onto a block.
type ConsensusResult struct {
	BlockID              int64
	Pattern              Pattern
	NonStandard          bool
	NonStandardConfirmed bool
	NeedsRecrop          bool
	FinalOrientationData string
	SupportingVotes      int
	TotalVotes           int
	ReachedAt            time.Time
}
