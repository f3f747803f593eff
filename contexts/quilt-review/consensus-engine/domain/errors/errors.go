package errors

import "errors"

var (
	ErrStorageRead       = errors.New("vote storage read failed")
	ErrStorageWrite      = errors.New("consensus storage write failed")
	ErrBlockNotFound     = errors.New("block not found")
	ErrInvalidBlockID    = errors.New("block id must be a positive integer")
	ErrInvalidVoteInput  = errors.New("invalid vote input")
	ErrInvalidFlagUpdate = errors.New("invalid flag update")
	ErrInvalidCorners    = errors.New("at least two crop corners are required")
	ErrInvalidImageSize  = errors.New("image dimensions must be positive")
	ErrConflict          = errors.New("block update conflict")
)
