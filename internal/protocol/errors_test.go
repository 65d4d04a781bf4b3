package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrInvalidSlot,
		ErrInvalidGame,
		ErrIncompatibleVersion,
		ErrInvalidPassword,
		ErrInvalidItemsHandling,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("NotACode") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestRefusedError(t *testing.T) {
	err := &RefusedError{Codes: []string{ErrInvalidSlot, ErrInvalidPassword}}
	if !err.Has(ErrInvalidPassword) || err.Has(ErrInvalidGame) {
		t.Fatalf("Has mismatch for %v", err.Codes)
	}
	if err.Error() != "connection refused: InvalidSlot, InvalidPassword" {
		t.Fatalf("Error=%q", err.Error())
	}
}
