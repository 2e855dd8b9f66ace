// Package dnssign implements the signing half of the DNSSEC/TSIG
// authentication story: ZSK/KSK lifecycle management, RRSIG generation over
// rrset.Set contents, and TSIG message signing/verification satisfying
// internal/wire's MessageSigner contract. Adapted from the teacher's
// internal/core/services/dnssec_service.go and internal/dns/packet/{dnssec,tsig}.go.
package dnssign

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lattice-dns/dnscore/internal/wire"
)

// KeyType distinguishes a zone's key-signing key from its zone-signing keys,
// matching the KSK/ZSK split the teacher's key store tracks per zone.
type KeyType string

const (
	KSK KeyType = "KSK"
	ZSK KeyType = "ZSK"
)

// Key is one generated signing key for a zone. Private holds the parsed
// key and PublicDER the x509-marshaled public key; a persistent KeyStore
// marshals Private to DER itself, mirroring the teacher's domain.DNSSECKey, which stores only the
// DER bytes and reparses on use.
type Key struct {
	ID         string
	ZoneID     string
	Type       KeyType
	Algorithm  uint8
	Private    *ecdsa.PrivateKey
	PublicDER  []byte
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AlgorithmECDSAP256SHA256 is the only signing algorithm this package
// implements, matching the teacher's fixed choice (RFC 6605).
const AlgorithmECDSAP256SHA256 uint8 = 13

// GenerateKey creates a new P-256 ECDSA key pair for zoneID.
func GenerateKey(zoneID string, kt KeyType) (*Key, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("dnssign: generate key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("dnssign: marshal public key: %w", err)
	}
	now := time.Now()
	return &Key{
		ID:        uuid.New().String(),
		ZoneID:    zoneID,
		Type:      kt,
		Algorithm: AlgorithmECDSAP256SHA256,
		Private:   priv,
		PublicDER: pubDER,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// dnskeyPublicKey returns the raw DNSKEY-rdata public key octets (the
// concatenated big-endian X||Y coordinates, RFC 6605 §4) for k.
func dnskeyPublicKey(k *Key) []byte {
	x := k.Private.PublicKey.X.Bytes()
	y := k.Private.PublicKey.Y.Bytes()
	const coordLen = 32 // P-256 coordinate width
	out := make([]byte, 2*coordLen)
	copy(out[coordLen-len(x):coordLen], x)
	copy(out[2*coordLen-len(y):], y)
	return out
}

// DNSKEYRecord builds the DNSKEY wire.Record describing k, with the SEP
// (257) flag set for a KSK and the zone-key-only (256) flag for a ZSK,
// matching the teacher's tempKeyRec construction in SignRRSet.
func DNSKEYRecord(k *Key, owner wire.Name, ttl uint32) wire.Record {
	flags := uint16(256)
	if k.Type == KSK {
		flags = 257
	}
	return wire.Record{
		Name:      owner,
		Type:      wire.TypeDNSKEY,
		Class:     wire.ClassIN,
		TTL:       ttl,
		Flags:     flags,
		Algorithm: k.Algorithm,
		PublicKey: dnskeyPublicKey(k),
	}
}

// KeyStore persists generated keys. Grounded on the teacher's
// ports.DNSRepository key methods (CreateKey/ListKeysForZone/UpdateKey);
// generalized into its own small interface per this codec's one-interface-
// per-concern style (internal/authority.Authority, internal/lookup).
type KeyStore interface {
	CreateKey(ctx context.Context, key *Key) error
	ListKeysForZone(ctx context.Context, zoneID string) ([]*Key, error)
	UpdateKey(ctx context.Context, key *Key) error
}

// MemStore is an in-process KeyStore, the default until internal/store/postgres
// supplies a persistent one. Safe for concurrent use.
type MemStore struct {
	mu   sync.RWMutex
	keys map[string][]*Key // zoneID -> keys
}

func NewMemStore() *MemStore {
	return &MemStore{keys: make(map[string][]*Key)}
}

func (m *MemStore) CreateKey(_ context.Context, key *Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key.ZoneID] = append(m.keys[key.ZoneID], key)
	return nil
}

func (m *MemStore) ListKeysForZone(_ context.Context, zoneID string) ([]*Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Key, len(m.keys[zoneID]))
	copy(out, m.keys[zoneID])
	return out, nil
}

func (m *MemStore) UpdateKey(_ context.Context, key *Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys[key.ZoneID] {
		if k.ID == key.ID {
			*k = *key
			return nil
		}
	}
	return fmt.Errorf("dnssign: key %s not found for zone %s", key.ID, key.ZoneID)
}
