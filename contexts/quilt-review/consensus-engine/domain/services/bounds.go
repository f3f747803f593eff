package services

import (
	"math"

	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"
	domainerrors "quiltqc/contexts/quilt-review/consensus-engine/domain/errors"
)

// ReferenceImageSize is the edge length of the preview images volunteers
// draw corners on.
const ReferenceImageSize = 512

// ComputeBounds returns the axis-aligned box enclosing all corners.
func ComputeBounds(corners []entities.Point) (entities.Bounds, error) {
	if len(corners) < 2 {
		return entities.Bounds{}, domainerrors.ErrInvalidCorners
	}
	minX, maxX := corners[0].X, corners[0].X
	minY, maxY := corners[0].Y, corners[0].Y
	for _, corner := range corners[1:] {
		minX = min(minX, corner.X)
		maxX = max(maxX, corner.X)
		minY = min(minY, corner.Y)
		maxY = max(maxY, corner.Y)
	}
	if maxX == minX || maxY == minY {
		return entities.Bounds{}, domainerrors.ErrInvalidCorners
	}
	return entities.Bounds{
		X:      minX,
		Y:      minY,
		Width:  maxX - minX,
		Height: maxY - minY,
	}, nil
}

// ScaleCorners maps corners drawn on the reference preview onto a source
// image of the given size.
func ScaleCorners(corners []entities.Point, width int, height int) ([]entities.Point, error) {
	if width <= 0 || height <= 0 {
		return nil, domainerrors.ErrInvalidImageSize
	}
	xScale := float64(width) / ReferenceImageSize
	yScale := float64(height) / ReferenceImageSize

	scaled := make([]entities.Point, 0, len(corners))
	for _, corner := range corners {
		scaled = append(scaled, entities.Point{
			X: int(math.Round(float64(corner.X) * xScale)),
			Y: int(math.Round(float64(corner.Y) * yScale)),
		})
	}
	return scaled, nil
}
