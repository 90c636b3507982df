package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"sitewatch/internal/models"
)

// ErrNotFound is returned when a requested key is not present.
var ErrNotFound = errors.New("not found")

// KV is the backend contract every storage driver satisfies.
type KV interface {
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

const (
	stateKey        = "monitor_state"
	heartbeatPrefix = "heartbeat:"
	adminPrefix     = "admin:"
)

// Store persists the monitor state, admin secrets and push heartbeats on
// top of a KV backend.
type Store struct {
	kv KV
}

// New wraps a KV backend.
func New(kv KV) *Store {
	return &Store{kv: kv}
}

// Close closes the underlying backend.
func (s *Store) Close() error { return s.kv.Close() }

// LoadState returns the persisted state, or nil without error when no state
// has been written yet.
func (s *Store) LoadState(ctx context.Context) (*models.MonitorState, error) {
	data, err := s.kv.Get(ctx, stateKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	state, err := DecodeState(data)
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return state, nil
}

// SaveState overwrites the persisted state. There is no concurrency token:
// the last writer wins.
func (s *Store) SaveState(ctx context.Context, state *models.MonitorState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := s.kv.Put(ctx, stateKey, data); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// GetAdminSecret returns ErrNotFound when the secret was never set.
func (s *Store) GetAdminSecret(ctx context.Context, key string) (string, error) {
	data, err := s.kv.Get(ctx, adminPrefix+key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SetAdminSecret stores value under key.
func (s *Store) SetAdminSecret(ctx context.Context, key, value string) error {
	return s.kv.Put(ctx, adminPrefix+key, []byte(value))
}

// RecordHeartbeat stores the latest heartbeat of a push site. Only the most
// recent heartbeat per site is kept.
func (s *Store) RecordHeartbeat(ctx context.Context, hb models.Heartbeat) error {
	data, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("encode heartbeat: %w", err)
	}
	if err := s.kv.Put(ctx, heartbeatPrefix+hb.SiteID, data); err != nil {
		return fmt.Errorf("record heartbeat: %w", err)
	}
	return nil
}

// LatestHeartbeats returns the stored heartbeat for each of the given sites
// that has one.
func (s *Store) LatestHeartbeats(ctx context.Context, siteIDs []string) (map[string]models.Heartbeat, error) {
	out := make(map[string]models.Heartbeat, len(siteIDs))
	for _, id := range siteIDs {
		data, err := s.kv.Get(ctx, heartbeatPrefix+id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load heartbeat %s: %w", id, err)
		}
		var hb models.Heartbeat
		if err := json.Unmarshal(data, &hb); err != nil {
			return nil, fmt.Errorf("decode heartbeat %s: %w", id, err)
		}
		out[id] = hb
	}
	return out, nil
}

// DeleteHeartbeat drops the stored heartbeat of a site.
func (s *Store) DeleteHeartbeat(ctx context.Context, siteID string) error {
	err := s.kv.Delete(ctx, heartbeatPrefix+siteID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
