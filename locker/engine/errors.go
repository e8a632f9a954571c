package engine

import "errors"

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrMissingCapability = errors.New("store client lacks conditional set capability")
	ErrNotLockHolder     = errors.New("you're not lock holder")
)
