package locker

import "github.com/git-hulk/go-lock/locker/engine"

var (
	ErrInvalidArgument   = engine.ErrInvalidArgument
	ErrMissingCapability = engine.ErrMissingCapability
	ErrNotLockHolder     = engine.ErrNotLockHolder
)
