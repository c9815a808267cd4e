package member

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Store persists the membership snapshot as a flat record list on
// disk. Every mutation rewrites the whole file through a temp-file
// rename, so readers never observe a partially written snapshot.
// A failed write is returned to the caller: stale keys staying live
// is an operator-visible problem, not something to swallow.
type Store struct {
	mu     sync.Mutex
	path   string
	guilds map[string]struct{}
}

// NewStore creates a store backed by path. When guilds is non-empty,
// saved records must belong to one of them.
func NewStore(path string, guilds []string) *Store {
	gs := make(map[string]struct{}, len(guilds))
	for _, g := range guilds {
		gs[g] = struct{}{}
	}
	return &Store{path: path, guilds: gs}
}

// Load reads the current snapshot. A missing file is an empty
// snapshot, not an error.
func (s *Store) Load() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("member: read %s: %w", s.path, err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("member: parse %s: %w", s.path, err)
	}
	return records, nil
}

// Replace writes a full snapshot, validating the guild invariant.
func (s *Store) Replace(records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(records)
}

func (s *Store) save(records []Record) error {
	if len(s.guilds) > 0 {
		for _, r := range records {
			if _, ok := s.guilds[r.Guild]; !ok {
				return fmt.Errorf("%w: %q (player %s)", ErrUnknownGuild, r.Guild, r.PlayerName)
			}
		}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("member: encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("member: create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("member: write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("member: close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("member: replace snapshot: %w", err)
	}
	return nil
}

// FindByPlayer looks a member up by player name, case-insensitively.
func (s *Store) FindByPlayer(player string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return Record{}, err
	}
	i := findByPlayer(records, player)
	if i < 0 {
		return Record{}, ErrNotFound
	}
	return records[i], nil
}

// RevokeKey clears a member's bridge key and persists the snapshot.
func (s *Store) RevokeKey(player string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return Record{}, err
	}
	i := findByPlayer(records, player)
	if i < 0 {
		return Record{}, ErrNotFound
	}
	if records[i].BridgeKey == "" {
		return Record{}, ErrNoActiveKey
	}
	records[i].BridgeKey = ""
	if err := s.save(records); err != nil {
		return Record{}, err
	}
	return records[i], nil
}

// RestoreKey issues a fresh key for a member whose access was
// revoked. Members holding an active key must be revoked first.
func (s *Store) RestoreKey(player string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return Record{}, err
	}
	i := findByPlayer(records, player)
	if i < 0 {
		return Record{}, ErrNotFound
	}
	if records[i].BridgeKey != "" {
		return Record{}, ErrKeyExists
	}
	records[i].BridgeKey = NewKey()
	if err := s.save(records); err != nil {
		return Record{}, err
	}
	return records[i], nil
}

// ResetKey replaces a member's active key with a new one, which
// invalidates the prior key immediately.
func (s *Store) ResetKey(player string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return Record{}, err
	}
	i := findByPlayer(records, player)
	if i < 0 {
		return Record{}, ErrNotFound
	}
	if records[i].BridgeKey == "" {
		return Record{}, ErrNoActiveKey
	}
	records[i].BridgeKey = NewKey()
	if err := s.save(records); err != nil {
		return Record{}, err
	}
	return records[i], nil
}

// NewKey generates an opaque 128-bit bridge key.
func NewKey() string {
	return uuid.NewString()
}
