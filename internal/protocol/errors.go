package protocol

import (
	"fmt"
	"strings"
)

// Connection refusal codes.
const (
	ErrInvalidSlot          = "InvalidSlot"
	ErrInvalidGame          = "InvalidGame"
	ErrIncompatibleVersion  = "IncompatibleVersion"
	ErrInvalidPassword      = "InvalidPassword"
	ErrInvalidItemsHandling = "InvalidItemsHandling"
)

var knownCodes = map[string]struct{}{
	ErrInvalidSlot:          {},
	ErrInvalidGame:          {},
	ErrIncompatibleVersion:  {},
	ErrInvalidPassword:      {},
	ErrInvalidItemsHandling: {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// RefusedError is returned when the server answers Connect with
// ConnectionRefused.
type RefusedError struct {
	Codes []string
}

func (e *RefusedError) Error() string {
	return fmt.Sprintf("connection refused: %s", strings.Join(e.Codes, ", "))
}

// Has reports whether code is among the refusal codes.
func (e *RefusedError) Has(code string) bool {
	for _, c := range e.Codes {
		if c == code {
			return true
		}
	}
	return false
}
