package domain

import "errors"

var (
	ErrInvalidTask      = errors.New("invalid task")
	ErrInvalidTopic     = errors.New("invalid topic")
	ErrStoreUnavailable = errors.New("state store unavailable")
)
