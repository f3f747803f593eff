package http

import "time"

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SubmitVoteRequest struct {
	BlockID         int64  `json:"block_id" validate:"required,gt=0"`
	OrientationData string `json:"orientation_data" validate:"t_maxbytes=4096"`
	NeedsRecrop     bool   `json:"needs_recrop"`
	NonStandard     bool   `json:"not_8_panel"`
	UserSession     string `json:"user_session" validate:"max=128"`
}

type SubmitVoteResponse struct {
	Success          bool           `json:"success"`
	VoteID           int64          `json:"vote_id"`
	BlockID          int64          `json:"block_id"`
	ConsensusSkipped bool           `json:"consensus_skipped,omitempty"`
	Consensus        *CheckResponse `json:"consensus,omitempty"`
	ConsensusError   string         `json:"consensus_error,omitempty"`
}

type CheckResponse struct {
	BlockID              int64  `json:"block_id"`
	Outcome              string `json:"outcome"`
	ConsensusReached     bool   `json:"consensus_reached"`
	TotalVotes           int    `json:"total_votes"`
	VoteCount            int    `json:"vote_count,omitempty"`
	NonStandard          bool   `json:"not_8_panel,omitempty"`
	NeedsRecrop          bool   `json:"needs_recrop,omitempty"`
	FinalOrientationData string `json:"final_orientation_data,omitempty"`
}

type BoundsDTO struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type BlockResponse struct {
	BlockID              int64      `json:"block_id"`
	NeedsRecrop          bool       `json:"needs_recrop"`
	Completed            bool       `json:"completed"`
	ConsensusReached     bool       `json:"consensus_reached"`
	NonStandard          bool       `json:"not_8_panel"`
	NonStandardConfirmed bool       `json:"not_8_panel_confirmed"`
	VoteCount            int        `json:"vote_count"`
	FinalOrientationData string     `json:"final_orientation_data,omitempty"`
	RecropCompleted      bool       `json:"recrop_completed"`
	RecropBounds         *BoundsDTO `json:"recrop_bounds,omitempty"`
	VerifiedBy           string     `json:"verified_by,omitempty"`
	VerifiedAt           *time.Time `json:"verified_at,omitempty"`
	ImageURL             string     `json:"image_url"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

type BlockSummaryResponse struct {
	BlockID              int64     `json:"block_id"`
	NeedsRecrop          bool      `json:"needs_recrop"`
	NonStandard          bool      `json:"not_8_panel"`
	NonStandardConfirmed bool      `json:"not_8_panel_confirmed"`
	ConsensusReached     bool      `json:"consensus_reached"`
	VoteCount            int       `json:"vote_count"`
	FinalOrientationData string    `json:"final_orientation_data,omitempty"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type BlockListResponse struct {
	Items []BlockSummaryResponse `json:"items"`
}

type RecropFlagRequest struct {
	NeedsRecrop *bool  `json:"needs_recrop" validate:"required"`
	VerifiedBy  string `json:"verified_by" validate:"t_verifier"`
}

type NonStandardFlagRequest struct {
	NonStandard *bool  `json:"not_8_panel" validate:"required"`
	VerifiedBy  string `json:"verified_by" validate:"t_verifier"`
}

type CornerDTO struct {
	X int `json:"x" validate:"gte=0"`
	Y int `json:"y" validate:"gte=0"`
}

type RecropRequest struct {
	BlockID     int64       `json:"block_id" validate:"required,gt=0"`
	Corners     []CornerDTO `json:"corners" validate:"min=2,max=16,dive"`
	ImageWidth  int         `json:"image_width" validate:"gte=0"`
	ImageHeight int         `json:"image_height" validate:"gte=0"`
	VerifiedBy  string      `json:"verified_by" validate:"optional,t_verifier"`
}

type RecropResponse struct {
	Success bool        `json:"success"`
	BlockID int64       `json:"block_id"`
	Corners []CornerDTO `json:"corners"`
	Bounds  BoundsDTO   `json:"bounds"`
}

type RecropStatsResponse struct {
	TotalNeedingRecrop int `json:"total_needing_recrop"`
	TotalRecropped     int `json:"total_recropped"`
}

type NonStandardStatsResponse struct {
	TotalNonStandard     int `json:"total_non_standard"`
	NonStandardCompleted int `json:"non_standard_completed"`
	NonStandardPending   int `json:"non_standard_pending"`
}

type TotalStatsResponse struct {
	TotalBlocks int `json:"total_blocks"`
}

type CompletedStatsResponse struct {
	CompletedBlocks  int `json:"completed_blocks"`
	ConsensusReached int `json:"consensus_reached"`
}

type VoteBreakdownResponse struct {
	BlocksWithOneVote      int `json:"blocks_with_one_vote"`
	BlocksWithTwoVotes     int `json:"blocks_with_two_votes"`
	BlocksWithThreeOrMore  int `json:"blocks_with_three_or_more"`
	VotesFromOneVoteBlocks int `json:"votes_from_one_vote_blocks"`
	VotesFromTwoVoteBlocks int `json:"votes_from_two_vote_blocks"`
	VotesFromThreeOrMore   int `json:"votes_from_three_or_more"`
}

type VotingStatsResponse struct {
	TotalVotes              int                   `json:"total_votes"`
	ConsensusReached        int                   `json:"consensus_reached"`
	Breakdown               VoteBreakdownResponse `json:"breakdown"`
	NonStandardVotes        int                   `json:"not_8_panel_votes"`
	NeedsRecropVotes        int                   `json:"needs_recrop_votes"`
	UniqueNonStandardBlocks int                   `json:"unique_not_8_panel_blocks"`
	UniqueNeedsRecropBlocks int                   `json:"unique_needs_recrop_blocks"`
	StandardBlocks          int                   `json:"standard_blocks"`
	StandardCompleted       int                   `json:"standard_completed"`
	NonStandardCompleted    int                   `json:"non_standard_completed"`
}
