// Package auth gates relay connections behind the bridge-key
// handshake and holds the credential store the handshake resolves
// against.
package auth

import (
	"sync/atomic"

	"github.com/N1K0LAAAA/ImsBridgeServer/pkg/member"
)

// KeyStore maps bridge keys to identities. The mapping is replaced
// wholesale on every reload via an atomic pointer swap, so a reader
// always observes either the fully-old or fully-new mapping, never a
// partial one.
type KeyStore struct {
	keys atomic.Pointer[map[string]member.Identity]
}

func NewKeyStore() *KeyStore {
	ks := &KeyStore{}
	empty := make(map[string]member.Identity)
	ks.keys.Store(&empty)
	return ks
}

// Reload swaps in the credential mapping derived from a snapshot.
func (ks *KeyStore) Reload(records []member.Record) {
	m := member.KeyMap(records)
	ks.keys.Store(&m)
}

// Resolve looks up the identity bound to a bridge key.
func (ks *KeyStore) Resolve(key string) (member.Identity, bool) {
	m := ks.keys.Load()
	id, ok := (*m)[key]
	return id, ok
}

// Len returns the number of active keys.
func (ks *KeyStore) Len() int {
	return len(*ks.keys.Load())
}
