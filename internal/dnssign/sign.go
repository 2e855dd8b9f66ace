package dnssign

import (
	"context"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/lattice-dns/dnscore/internal/wire"
)

// DefaultSignatureValidity is the RRSIG validity window the teacher's
// SignRRSet hardcodes (30 days).
const DefaultSignatureValidity = 30 * 24 * time.Hour

// SignRRSet signs records (one rrset.Set's contents, sharing an owner/type)
// with every active ZSK for zoneID, returning one RRSIG per key — a zone
// mid-rollover with two active ZSKs produces two signatures, letting
// resolvers validate against whichever key they already trust. Grounded on
// the teacher's DNSSECService.SignRRSet.
func (m *Manager) SignRRSet(ctx context.Context, zoneName wire.Name, zoneID string, records []wire.Record) ([]wire.Record, error) {
	if len(records) == 0 {
		return nil, nil
	}

	keys, err := m.ActiveKeys(ctx, zoneID, ZSK)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("dnssign: no active ZSK for zone %s", zoneID)
	}

	now := uint32(time.Now().Unix())
	expiration := now + uint32(DefaultSignatureValidity.Seconds())

	sigs := make([]wire.Record, 0, len(keys))
	for _, key := range keys {
		dnskey := DNSKEYRecord(key, zoneName, records[0].TTL)
		keyTag := ComputeKeyTag(dnskey)

		sig, err := SignRRset(key.Private, zoneName, keyTag, now, expiration, records)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// ParsePrivateKey reparses a DER-encoded EC private key, the form a
// KeyStore backed by persistent storage would hand back after a round
// trip (internal/store/postgres stores Key.Private as DER, matching the
// teacher's domain.DNSSECKey.PrivateKey column).
func ParsePrivateKey(der []byte) (*Key, error) {
	priv, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("dnssign: parse private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	return &Key{Private: priv, PublicDER: pubDER, Algorithm: AlgorithmECDSAP256SHA256}, nil
}
