package dnssign

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-dns/dnscore/internal/wire"
)

func baseQuery() *wire.Message {
	return &wire.Message{
		Header: wire.Header{ID: 0xBEEF, RecursionDesired: true},
		Queries: []wire.Query{
			{Name: wire.NewName("example.com"), Class: wire.ClassIN, Type: wire.TypeAXFR},
		},
	}
}

func TestTSIGSigner_SignPopulatesSignatureAndFinalizesMessage(t *testing.T) {
	signer := NewTSIGSigner(TSIGKey{Name: wire.NewName("key1"), Secret: []byte("supersecret")})
	msg := baseQuery()

	verifier, err := msg.Finalize(signer, time.Now())
	require.NoError(t, err)
	require.NotNil(t, verifier)
	assert.Equal(t, wire.Tsig, msg.Signature.Kind)
	assert.NotEmpty(t, msg.Signature.Record.MAC)
	assert.Equal(t, TSIGAlgorithm, msg.Signature.Record.AlgorithmName)
}

func TestTSIGSigner_VerifyAcceptsOwnSignature(t *testing.T) {
	signer := NewTSIGSigner(TSIGKey{Name: wire.NewName("key1"), Secret: []byte("supersecret")})
	msg := baseQuery()
	_, err := msg.Finalize(signer, time.Now())
	require.NoError(t, err)

	assert.NoError(t, signer.Verify(msg))
}

func TestTSIGSigner_VerifyRejectsWrongSecret(t *testing.T) {
	signer := NewTSIGSigner(TSIGKey{Name: wire.NewName("key1"), Secret: []byte("supersecret")})
	msg := baseQuery()
	_, err := msg.Finalize(signer, time.Now())
	require.NoError(t, err)

	other := NewTSIGSigner(TSIGKey{Name: wire.NewName("key1"), Secret: []byte("wrong-secret")})
	assert.Error(t, other.Verify(msg))
}

func TestTSIGSigner_VerifyRejectsStaleTimestamp(t *testing.T) {
	signer := NewTSIGSigner(TSIGKey{Name: wire.NewName("key1"), Secret: []byte("supersecret")})
	msg := baseQuery()
	_, err := msg.Finalize(signer, time.Now().Add(-1*time.Hour))
	require.NoError(t, err)

	assert.Error(t, signer.Verify(msg), "fudge window is 300s; an hour-old timestamp must be rejected")
}

func TestTSIGSigner_VerifyRejectsNonTSIGMessage(t *testing.T) {
	signer := NewTSIGSigner(TSIGKey{Name: wire.NewName("key1"), Secret: []byte("supersecret")})
	assert.Error(t, signer.Verify(baseQuery()))
}

func TestTSIGSigner_RoundTripsThroughEncodeDecode(t *testing.T) {
	signer := NewTSIGSigner(TSIGKey{Name: wire.NewName("key1"), Secret: []byte("supersecret")})
	msg := baseQuery()
	_, err := msg.Finalize(signer, time.Now())
	require.NoError(t, err)

	buf, _, err := wire.Encode(msg, wire.Normal, 0)
	require.NoError(t, err)

	decoded, err := wire.Decode(buf)
	require.NoError(t, err)
	require.Equal(t, wire.Tsig, decoded.Signature.Kind)

	assert.NoError(t, signer.Verify(decoded))
}
