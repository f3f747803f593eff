package services

import (
	"testing"

	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"
	domainerrors "quiltqc/contexts/quilt-review/consensus-engine/domain/errors"

	"github.com/stretchr/testify/require"
)

func TestComputeBoundsEnclosesAllCorners(t *testing.T) {
	bounds, err := ComputeBounds([]entities.Point{
		{X: 40, Y: 12},
		{X: 480, Y: 20},
		{X: 470, Y: 500},
		{X: 35, Y: 490},
	})
	require.NoError(t, err)
	require.Equal(t, entities.Bounds{X: 35, Y: 12, Width: 445, Height: 488}, bounds)
}

func TestComputeBoundsRejectsDegenerateInput(t *testing.T) {
	_, err := ComputeBounds([]entities.Point{{X: 1, Y: 1}})
	require.ErrorIs(t, err, domainerrors.ErrInvalidCorners)

	_, err = ComputeBounds([]entities.Point{{X: 1, Y: 1}, {X: 1, Y: 90}})
	require.ErrorIs(t, err, domainerrors.ErrInvalidCorners)
}

func TestScaleCornersMapsReferenceToSource(t *testing.T) {
	scaled, err := ScaleCorners([]entities.Point{{X: 0, Y: 0}, {X: 256, Y: 512}}, 2048, 1024)
	require.NoError(t, err)
	require.Equal(t, []entities.Point{{X: 0, Y: 0}, {X: 1024, Y: 1024}}, scaled)
}

func TestScaleCornersRejectsEmptyImage(t *testing.T) {
	_, err := ScaleCorners([]entities.Point{{X: 1, Y: 1}}, 0, 100)
	require.ErrorIs(t, err, domainerrors.ErrInvalidImageSize)
}
