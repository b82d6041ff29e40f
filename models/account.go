package models

import (
	"encoding/hex"
	"fmt"
)

// AccountID is an ed25519 public key identifying a signing identity.
type AccountID [32]byte

func (a AccountID) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// MarshalText renders the account as 0x-prefixed hex in JSON and logs.
func (a AccountID) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// ParseAccountID accepts hex with or without the 0x prefix.
func ParseAccountID(s string) (AccountID, error) {
	var id AccountID
	if len(s) >= 2 && s[:2] == "0x" {
		s = s[2:]
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("parse account id: %w", err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("parse account id: want %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// SubmissionOutcome is the local dispatch result for one identity. It says
// nothing about block inclusion.
type SubmissionOutcome struct {
	Identity AccountID `json:"identity"`
	Err      error     `json:"-"`
}

func (o SubmissionOutcome) OK() bool { return o.Err == nil }
