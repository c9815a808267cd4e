// Package member holds the durable membership snapshot: who belongs
// to which guild, and which bridge key (if any) each member holds.
package member

import (
	"errors"
	"strings"
)

var (
	ErrNotFound     = errors.New("member: player not found")
	ErrNoActiveKey  = errors.New("member: player has no active bridge key")
	ErrKeyExists    = errors.New("member: player already has an active bridge key")
	ErrUnknownGuild = errors.New("member: guild is not in the configured set")
)

// Identity is the immutable snapshot of who a connection claims to
// be. It is replaced wholesale on resync, never patched in place.
type Identity struct {
	PlayerName string
	Guild      string
}

// Record is one persisted membership entry. BridgeKey is empty when
// access has been revoked; at most one key exists per PlayerID.
type Record struct {
	PlayerName    string `json:"player_name"`
	PlayerID      string `json:"player_id"`
	LinkedContact string `json:"linked_contact,omitempty"`
	BridgeKey     string `json:"bridge_key,omitempty"`
	Guild         string `json:"guild"`
}

// Identity returns the identity a record's bridge key resolves to.
func (r Record) Identity() Identity {
	return Identity{PlayerName: r.PlayerName, Guild: r.Guild}
}

// KeyMap builds the credential mapping for the authenticator from a
// snapshot, skipping records without an active key.
func KeyMap(records []Record) map[string]Identity {
	keys := make(map[string]Identity, len(records))
	for _, r := range records {
		if r.BridgeKey == "" || r.Guild == "" {
			continue
		}
		keys[r.BridgeKey] = r.Identity()
	}
	return keys
}

func findByPlayer(records []Record, player string) int {
	for i, r := range records {
		if strings.EqualFold(r.PlayerName, player) {
			return i
		}
	}
	return -1
}
