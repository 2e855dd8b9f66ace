package dnssign

import (
	"context"
	"time"
)

// Rollover periods, matching the teacher's AutomateLifecycle constants.
const (
	ZSKRolloverPeriod = 30 * 24 * time.Hour
	ZSKOverlapPeriod  = 1 * 24 * time.Hour
	KSKRolloverPeriod = 365 * 24 * time.Hour
	KSKOverlapPeriod  = 2 * 24 * time.Hour
)

// Manager owns key generation and rollover for zones. It has no notion of
// zone content; internal/zoneauth calls GenerateKey/SignRRSet against the
// Manager for the zones it serves.
type Manager struct {
	Store KeyStore
}

func NewManager(store KeyStore) *Manager {
	return &Manager{Store: store}
}

// GenerateKey creates and persists a new key for zoneID.
func (m *Manager) GenerateKey(ctx context.Context, zoneID string, kt KeyType) (*Key, error) {
	key, err := GenerateKey(zoneID, kt)
	if err != nil {
		return nil, err
	}
	if err := m.Store.CreateKey(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

// AutomateLifecycle ensures zoneID has a fresh KSK and ZSK, generating an
// initial pair if none exist, rolling a new key in once the active one ages
// past its rollover period, and retiring keys once they age past
// rollover+overlap. A double-signature period (old and new key both active)
// spans the overlap window. Grounded on the teacher's
// DNSSECService.AutomateLifecycle, ported almost verbatim — the rollover
// arithmetic and phase structure are unchanged, only the Key/KeyStore types
// differ.
func (m *Manager) AutomateLifecycle(ctx context.Context, zoneID string) error {
	keys, err := m.Store.ListKeysForZone(ctx, zoneID)
	if err != nil {
		return err
	}

	process := func(kt KeyType, rollover, overlap time.Duration) error {
		var active []*Key
		for _, k := range keys {
			if k.Type == kt && k.Active {
				active = append(active, k)
			}
		}

		if len(active) == 0 {
			_, err := m.GenerateKey(ctx, zoneID, kt)
			return err
		}

		now := time.Now()
		hasRecent := false
		for _, k := range active {
			if now.Sub(k.CreatedAt) < rollover {
				hasRecent = true
			}
		}
		if !hasRecent {
			if _, err := m.GenerateKey(ctx, zoneID, kt); err != nil {
				return err
			}
		}

		for _, k := range active {
			if now.Sub(k.CreatedAt) > rollover+overlap {
				k.Active = false
				k.UpdatedAt = now
				if err := m.Store.UpdateKey(ctx, k); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := process(KSK, KSKRolloverPeriod, KSKOverlapPeriod); err != nil {
		return err
	}
	return process(ZSK, ZSKRolloverPeriod, ZSKOverlapPeriod)
}

// ActiveKeys returns the currently active keys of kt for zoneID.
func (m *Manager) ActiveKeys(ctx context.Context, zoneID string, kt KeyType) ([]*Key, error) {
	keys, err := m.Store.ListKeysForZone(ctx, zoneID)
	if err != nil {
		return nil, err
	}
	var active []*Key
	for _, k := range keys {
		if k.Type == kt && k.Active {
			active = append(active, k)
		}
	}
	return active, nil
}
