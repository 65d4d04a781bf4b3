package tracker

import "errors"

var (
	// ErrDatapackageMismatch means none of the received item ids exist in
	// the bound graph's item table: the wrong world is loaded.
	ErrDatapackageMismatch = errors.New("datapackage mismatch")
	ErrUnknownName         = errors.New("unknown region, location or connection")
	ErrRaceMode            = errors.New("disabled in race mode")
	ErrNotInitialized      = errors.New("tracker has no graph bound")
)
