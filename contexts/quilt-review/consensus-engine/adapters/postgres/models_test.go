package postgresadapter

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func ptr[T any](value T) *T { return &value }

func TestBlockModelToEntity(t *testing.T) {
	verifiedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	row := blockModel{
		BlockID:              42,
		ConsensusReached:     true,
		Completed:            true,
		VoteCount:            2,
		FinalOrientationData: ptr(`{"points":[1],"consensus":true}`),
		RecropCompleted:      true,
		RecropX:              ptr(1),
		RecropY:              ptr(2),
		RecropWidth:          ptr(30),
		RecropHeight:         ptr(40),
		VerifiedBy:           ptr("alex"),
		VerifiedAt:           &verifiedAt,
	}

	block := row.toEntity()
	require.Equal(t, int64(42), block.BlockID)
	require.Equal(t, `{"points":[1],"consensus":true}`, block.FinalOrientationData)
	require.Equal(t, &entities.Bounds{X: 1, Y: 2, Width: 30, Height: 40}, block.RecropBounds)
	require.Equal(t, "alex", block.VerifiedBy)
	require.Equal(t, verifiedAt, *block.VerifiedAt)

	row.RecropHeight = nil
	require.Nil(t, row.toEntity().RecropBounds)
}

func TestBlockModelMatchesStoredConsensus(t *testing.T) {
	result := entities.ConsensusResult{
		BlockID:              7,
		NonStandard:          true,
		NonStandardConfirmed: true,
		FinalOrientationData: entities.NonStandardSentinel,
		SupportingVotes:      2,
	}
	row := blockModel{
		BlockID:              7,
		ConsensusReached:     true,
		Completed:            true,
		NonStandard:          true,
		NonStandardConfirmed: true,
		VoteCount:            2,
		FinalOrientationData: ptr(entities.NonStandardSentinel),
	}
	require.True(t, row.matches(result))

	result.SupportingVotes = 3
	require.False(t, row.matches(result))

	row.ConsensusReached = false
	result.SupportingVotes = 2
	require.False(t, row.matches(result))
}

func TestPostgresErrorClassifiers(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	foreign := &pgconn.PgError{Code: "23503"}
	missing := &pgconn.PgError{Code: "42P01"}

	require.True(t, isUniqueViolation(unique))
	require.True(t, isForeignKeyViolation(foreign))
	require.True(t, isUndefinedTable(missing))
	require.False(t, isUniqueViolation(errors.New("boom")))
	require.False(t, isUndefinedTable(foreign))
}
