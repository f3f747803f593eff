package entities

import "time"

// Block is one scanned quilt-block image region. Rows are seeded once over a
// fixed id range and never deleted.
type Block struct {
	BlockID              int64
	NeedsRecrop          bool
	Completed            bool
	ConsensusReached     bool
	NonStandard          bool
	NonStandardConfirmed bool
	VoteCount            int
	FinalOrientationData string
	RecropCompleted      bool
	RecropBounds         *Bounds
	VerifiedBy           string
	VerifiedAt           *time.Time
	IPAddress            string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsClosed reports whether the primary submission flow should stop
// re-evaluating the block.
func (b Block) IsClosed() bool {
	return b.ConsensusReached
}

// BlockSummary is a read-side row used by list endpoints. VoteCount carries
// whatever count the listing defines (supporting votes for confirmed rows,
// raw vote totals for pending/recrop rows).
type BlockSummary struct {
	BlockID              int64
	NeedsRecrop          bool
	NonStandard          bool
	NonStandardConfirmed bool
	ConsensusReached     bool
	VoteCount            int
	FinalOrientationData string
	UpdatedAt            time.Time
}

// Point is a corner position in image pixel coordinates.
type Point struct {
	X int
	Y int
}

// Bounds is an axis-aligned crop rectangle.
type Bounds struct {
	X      int
	Y      int
	Width  int
	Height int
}

type VoteBreakdown struct {
	BlocksWithOneVote      int
	BlocksWithTwoVotes     int
	BlocksWithThreeOrMore  int
	VotesFromOneVoteBlocks int
	VotesFromTwoVoteBlocks int
	VotesFromThreeOrMore   int
}

// Stats aggregates dashboard counters. It is a pure read model.
type Stats struct {
	TotalBlocks             int
	CompletedBlocks         int
	TotalVotes              int
	ConsensusReached        int
	Breakdown               VoteBreakdown
	NonStandardVotes        int
	NeedsRecropVotes        int
	UniqueNonStandardBlocks int
	UniqueNeedsRecropBlocks int
	StandardBlocks          int
	StandardCompleted       int
	NonStandardCompleted    int
	NonStandardPending      int
	BlocksNeedingRecrop     int
	BlocksRecropped         int
}
