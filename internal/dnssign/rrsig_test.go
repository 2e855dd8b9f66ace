package dnssign

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"math/big"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-dns/dnscore/internal/wire"
)

func sha256Sum(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func splitSignature(sig []byte) (*big.Int, *big.Int) {
	half := len(sig) / 2
	return new(big.Int).SetBytes(sig[:half]), new(big.Int).SetBytes(sig[half:])
}

func TestComputeKeyTag_StableForSameKey(t *testing.T) {
	key, err := GenerateKey("zone-1", ZSK)
	require.NoError(t, err)
	rec := DNSKEYRecord(key, wire.NewName("example.com"), 3600)

	tag1 := ComputeKeyTag(rec)
	tag2 := ComputeKeyTag(rec)
	assert.Equal(t, tag1, tag2)
}

func TestComputeDS_SHA256Digest(t *testing.T) {
	key, err := GenerateKey("zone-1", KSK)
	require.NoError(t, err)
	dnskey := DNSKEYRecord(key, wire.NewName("example.com"), 3600)

	ds, err := ComputeDS(dnskey, wire.NewName("example.com"), 2)
	require.NoError(t, err)
	assert.Equal(t, wire.TypeDS, ds.Type)
	assert.Equal(t, uint8(2), ds.DigestType)
	assert.Len(t, ds.Digest, 32)
	assert.Equal(t, ComputeKeyTag(dnskey), ds.KeyTag)
}

func TestComputeDS_RejectsUnknownDigestType(t *testing.T) {
	key, err := GenerateKey("zone-1", KSK)
	require.NoError(t, err)
	dnskey := DNSKEYRecord(key, wire.NewName("example.com"), 3600)

	_, err = ComputeDS(dnskey, wire.NewName("example.com"), 9)
	assert.Error(t, err)
}

func aRecord(name wire.Name, ip string) wire.Record {
	return wire.Record{Name: name, Type: wire.TypeA, Class: wire.ClassIN, TTL: 3600, IP: net.ParseIP(ip).To4()}
}

func TestSignRRset_ProducesVerifiableSignature(t *testing.T) {
	key, err := GenerateKey("zone-1", ZSK)
	require.NoError(t, err)

	records := []wire.Record{
		aRecord(wire.NewName("www.example.com"), "93.184.215.14"),
		aRecord(wire.NewName("www.example.com"), "93.184.215.15"),
	}

	sig, err := SignRRset(key.Private, wire.NewName("example.com"), 12345, 1000, 2000, records)
	require.NoError(t, err)
	assert.Equal(t, wire.TypeRRSIG, sig.Type)
	assert.Equal(t, uint16(wire.TypeA), sig.TypeCovered)
	assert.Equal(t, AlgorithmECDSAP256SHA256, sig.Algorithm)
	assert.Len(t, sig.Signature, 64)

	rrsetBytes, err := canonicalRRsetBytes(records, records[0].TTL)
	require.NoError(t, err)

	fields := wire.NewEncoder(wire.Uncompressed)
	fields.WriteUint16(sig.TypeCovered)
	fields.WriteByte(sig.Algorithm)
	fields.WriteByte(sig.Labels)
	fields.WriteUint32(sig.OrigTTL)
	fields.WriteUint32(sig.Expiration)
	fields.WriteUint32(sig.Inception)
	fields.WriteUint16(sig.KeyTag)
	require.NoError(t, fields.WriteName(sig.SignerName))

	digest := sha256Sum(fields.Bytes(), rrsetBytes)
	r, s := splitSignature(sig.Signature)
	assert.True(t, ecdsa.Verify(&key.Private.PublicKey, digest, r, s))
}

func TestSignRRset_EmptyRecordsErrors(t *testing.T) {
	key, err := GenerateKey("zone-1", ZSK)
	require.NoError(t, err)
	_, err = SignRRset(key.Private, wire.NewName("example.com"), 1, 0, 0, nil)
	assert.Error(t, err)
}

func TestCanonicalRRsetBytes_OrderIndependent(t *testing.T) {
	a := aRecord(wire.NewName("www.example.com"), "93.184.215.14")
	b := aRecord(wire.NewName("www.example.com"), "93.184.215.15")

	forward, err := canonicalRRsetBytes([]wire.Record{a, b}, a.TTL)
	require.NoError(t, err)
	reversed, err := canonicalRRsetBytes([]wire.Record{b, a}, a.TTL)
	require.NoError(t, err)
	assert.Equal(t, forward, reversed, "canonical ordering must not depend on input order")
}
