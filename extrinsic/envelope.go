package extrinsic

import (
	"crypto/ed25519"

	"github.com/google/uuid"
	"github.com/hdevalence/ed25519consensus"
	"golang.org/x/crypto/blake2b"

	"ocw-node/models"
)

// Envelope is a call signed by one identity.
type Envelope struct {
	ID        uuid.UUID        `json:"id"`
	Signer    models.AccountID `json:"signer"`
	Call      []byte           `json:"call"`
	Signature []byte           `json:"signature"`
}

// SignFunc signs msg with the key behind an identity.
type SignFunc func(msg []byte) ([]byte, error)

// New encodes call and signs it on behalf of signer.
func New(signer models.AccountID, call Call, sign SignFunc) (*Envelope, error) {
	encoded, err := EncodeCall(call)
	if err != nil {
		return nil, err
	}
	env := &Envelope{
		ID:     uuid.New(),
		Signer: signer,
		Call:   encoded,
	}
	sig, err := sign(env.SigningPayload())
	if err != nil {
		return nil, err
	}
	env.Signature = sig
	return env, nil
}

// SigningPayload is blake2b-256(id ++ signer ++ call).
func (e *Envelope) SigningPayload() []byte {
	h, _ := blake2b.New256(nil)
	h.Write(e.ID[:])
	h.Write(e.Signer[:])
	h.Write(e.Call)
	return h.Sum(nil)
}

// Verify checks the signature with ZIP-215 rules.
func (e *Envelope) Verify() bool {
	if len(e.Signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519consensus.Verify(ed25519.PublicKey(e.Signer[:]), e.SigningPayload(), e.Signature)
}

// Hash identifies the envelope, signature included.
func (e *Envelope) Hash() [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write(e.SigningPayload())
	h.Write(e.Signature)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// DecodedCall decodes the carried call.
func (e *Envelope) DecodedCall() (Call, error) {
	return DecodeCall(e.Call)
}
