package postgresadapter

import (
	"time"

	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"
)

type blockModel struct {
	BlockID              int64      `gorm:"column:block_id;primaryKey;autoIncrement:false"`
	NeedsRecrop          bool       `gorm:"column:needs_recrop;not null;default:false;index"`
	Completed            bool       `gorm:"column:completed;not null;default:false"`
	ConsensusReached     bool       `gorm:"column:consensus_reached;not null;default:false;index"`
	NonStandard          bool       `gorm:"column:not_8_panel;not null;default:false"`
	NonStandardConfirmed bool       `gorm:"column:not_8_panel_confirmed;not null;default:false"`
	VoteCount            int        `gorm:"column:vote_count;not null;default:0"`
	FinalOrientationData *string    `gorm:"column:final_orientation_data;type:text"`
	RecropCompleted      bool       `gorm:"column:recrop_completed;not null;default:false"`
	RecropX              *int       `gorm:"column:recrop_x"`
	RecropY              *int       `gorm:"column:recrop_y"`
	RecropWidth          *int       `gorm:"column:recrop_width"`
	RecropHeight         *int       `gorm:"column:recrop_height"`
	VerifiedBy           *string    `gorm:"column:verified_by"`
	VerifiedAt           *time.Time `gorm:"column:verified_at"`
	IPAddress            *string    `gorm:"column:ip_address"`
	CreatedAt            time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt            time.Time  `gorm:"column:updated_at;not null"`
}

func (blockModel) TableName() string { return "blocks" }

func (m blockModel) toEntity() entities.Block {
	block := entities.Block{
		BlockID:              m.BlockID,
		NeedsRecrop:          m.NeedsRecrop,
		Completed:            m.Completed,
		ConsensusReached:     m.ConsensusReached,
		NonStandard:          m.NonStandard,
		NonStandardConfirmed: m.NonStandardConfirmed,
		VoteCount:            m.VoteCount,
		FinalOrientationData: deref(m.FinalOrientationData),
		RecropCompleted:      m.RecropCompleted,
		VerifiedBy:           deref(m.VerifiedBy),
		IPAddress:            deref(m.IPAddress),
		CreatedAt:            m.CreatedAt.UTC(),
		UpdatedAt:            m.UpdatedAt.UTC(),
	}
	if m.VerifiedAt != nil {
		verifiedAt := m.VerifiedAt.UTC()
		block.VerifiedAt = &verifiedAt
	}
	if m.RecropX != nil && m.RecropY != nil && m.RecropWidth != nil && m.RecropHeight != nil {
		block.RecropBounds = &entities.Bounds{
			X:      *m.RecropX,
			Y:      *m.RecropY,
			Width:  *m.RecropWidth,
			Height: *m.RecropHeight,
		}
	}
	return block
}

func (m blockModel) toSummary() entities.BlockSummary {
	return entities.BlockSummary{
		BlockID:              m.BlockID,
		NeedsRecrop:          m.NeedsRecrop,
		NonStandard:          m.NonStandard,
		NonStandardConfirmed: m.NonStandardConfirmed,
		ConsensusReached:     m.ConsensusReached,
		VoteCount:            m.VoteCount,
		FinalOrientationData: deref(m.FinalOrientationData),
		UpdatedAt:            m.UpdatedAt.UTC(),
	}
}

// matches reports whether the row already holds exactly this result.
func (m blockModel) matches(result entities.ConsensusResult) bool {
	return m.ConsensusReached &&
		m.Completed &&
		m.NonStandard == result.NonStandard &&
		m.NonStandardConfirmed == result.NonStandardConfirmed &&
		m.NeedsRecrop == result.NeedsRecrop &&
		m.VoteCount == result.SupportingVotes &&
		deref(m.FinalOrientationData) == result.FinalOrientationData
}

type voteModel struct {
	VoteID          int64       `gorm:"column:vote_id;primaryKey;autoIncrement"`
	BlockID         int64       `gorm:"column:block_id;not null;index:idx_votes_block_created,priority:1"`
	Block           *blockModel `gorm:"foreignKey:BlockID;references:BlockID;constraint:OnDelete:RESTRICT"`
	OrientationData string      `gorm:"column:orientation_data;type:text;not null;default:''"`
	NeedsRecrop     bool        `gorm:"column:needs_recrop;not null;default:false"`
	NonStandard     bool        `gorm:"column:not_8_panel;not null;default:false"`
	IPAddress       string      `gorm:"column:ip_address;not null;default:''"`
	UserSession     string      `gorm:"column:user_session;not null;default:''"`
	CreatedAt       time.Time   `gorm:"column:created_at;not null;index:idx_votes_block_created,priority:2"`
}

func (voteModel) TableName() string { return "votes" }

func voteModelFromEntity(vote entities.Vote) voteModel {
	return voteModel{
		BlockID:         vote.BlockID,
		OrientationData: vote.OrientationData,
		NeedsRecrop:     vote.NeedsRecrop,
		NonStandard:     vote.NonStandard,
		IPAddress:       vote.IPAddress,
		UserSession:     vote.UserSession,
		CreatedAt:       vote.CreatedAt.UTC(),
	}
}

func (m voteModel) toEntity() entities.Vote {
	return entities.Vote{
		VoteID:          m.VoteID,
		BlockID:         m.BlockID,
		OrientationData: m.OrientationData,
		NeedsRecrop:     m.NeedsRecrop,
		NonStandard:     m.NonStandard,
		IPAddress:       m.IPAddress,
		UserSession:     m.UserSession,
		CreatedAt:       m.CreatedAt.UTC(),
	}
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type;not null"`
	PartitionKey string     `gorm:"column:partition_key;not null"`
	Payload      []byte     `gorm:"column:payload;type:jsonb;not null"`
	Status       string     `gorm:"column:status;not null;index"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string { return "consensus_outbox" }

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
