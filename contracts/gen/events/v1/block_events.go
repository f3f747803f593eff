package v1

const (
	EventTypeBlockConsensusReached = "block.consensus_reached"
	EventTypeBlockRecropCompleted  = "block.recrop_completed"
)

// BlockConsensusReached is emitted when a block's votes settle on one
// orientation. FinalOrientationData is either the JSON point payload or the
// NON_STANDARD_BLOCK sentinel.
type BlockConsensusReached struct {
	BlockID              int64  `json:"block_id"`
	FinalOrientationData string `json:"final_orientation_data"`
	NonStandard          bool   `json:"not_8_panel"`
	NeedsRecrop          bool   `json:"needs_recrop"`
	VoteCount            int    `json:"vote_count"`
	TotalVotes           int    `json:"total_votes"`
}

// BlockRecropCompleted carries the crop rectangle, in source image pixels,
// for the image worker.
type BlockRecropCompleted struct {
	BlockID    int64  `json:"block_id"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	VerifiedBy string `json:"verified_by,omitempty"`
}
