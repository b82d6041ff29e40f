package extrinsic

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocw-node/models"
)

func newKey(t *testing.T) (models.AccountID, SignFunc) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	var id models.AccountID
	copy(id[:], pub)
	return id, func(msg []byte) ([]byte, error) { return ed25519.Sign(priv, msg), nil }
}

func TestEncodeCall_SubmitPrice(t *testing.T) {
	data, err := EncodeCall(SubmitPrice{Payload: 725})
	require.NoError(t, err)
	assert.Equal(t, []byte{indexSubmitPrice, 0xd5, 0x02, 0, 0}, data)

	call, err := DecodeCall(data)
	require.NoError(t, err)
	assert.Equal(t, SubmitPrice{Payload: 725}, call)
}

func TestDecodeCall_Malformed(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty":           nil,
		"unknown_variant": {0x7f},
		"short_payload":   {indexSubmitPrice, 1, 2},
		"trailing_bytes":  {indexSubmitPrice, 1, 0, 0, 0, 9},
		"cause_error_arg": {indexCauseError, 1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCall(data)
			assert.ErrorIs(t, err, ErrMalformedCall)
		})
	}
}

func TestEnvelope_SignVerify(t *testing.T) {
	id, sign := newKey(t)

	env, err := New(id, SubmitPrice{Payload: 10}, sign)
	require.NoError(t, err)
	assert.True(t, env.Verify())

	call, err := env.DecodedCall()
	require.NoError(t, err)
	assert.Equal(t, SubmitPrice{Payload: 10}, call)

	tampered := *env
	tampered.Call = append([]byte(nil), env.Call...)
	tampered.Call[1] = 11
	assert.False(t, tampered.Verify())

	other, _ := newKey(t)
	forged := *env
	forged.Signer = other
	assert.False(t, forged.Verify())
}

func TestEnvelope_HashUnique(t *testing.T) {
	id, sign := newKey(t)
	a, err := New(id, SubmitPrice{Payload: 10}, sign)
	require.NoError(t, err)
	b, err := New(id, SubmitPrice{Payload: 10}, sign)
	require.NoError(t, err)

	assert.NotEqual(t, a.Hash(), b.Hash(), "fresh ids give distinct envelopes")
	assert.Equal(t, a.Hash(), a.Hash())
}

func TestParseCall(t *testing.T) {
	for _, tc := range []struct {
		name string
		arg  uint64
		want Call
	}{
		{"do_something", 7, DoSomething{Value: 7}},
		{"cause_error", 123, CauseError{}},
		{"submit_price", 725, SubmitPrice{Payload: 725}},
		{"index_number", 1 << 40, IndexNumber{Number: 1 << 40}},
	} {
		got, err := ParseCall(tc.name, tc.arg)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, got)
	}

	_, err := ParseCall("transfer", 1)
	assert.ErrorIs(t, err, ErrMalformedCall)
	_, err = ParseCall("do_something", 1<<32)
	assert.ErrorIs(t, err, ErrMalformedCall)
}
