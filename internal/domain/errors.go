package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrFeedExists           = errors.New("feed already exists")
	ErrDuplicateFingerprint = errors.New("duplicate item fingerprint")
	ErrInvalidSetting       = errors.New("invalid setting")
)
