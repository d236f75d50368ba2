// Package codec holds the byte-array serializers a managed tree uses to
// turn Go values into the key/value bytes the btree package stores, and
// back. Codecs are an external collaborator the caller supplies (or picks
// by name from the builtin registry); this package is the concrete home
// for them, plus the name registry recordmgr.Manager needs to resolve a
// BTreeInfo's stored codec identifiers back into live codecs on reopen.
package codec

import "sync"

// KeyCodec encodes/decodes a tree's key type and orders two decoded keys.
// Name is persisted verbatim in the tree's BTreeInfo record so a reopened
// file can look the codec back up.
type KeyCodec interface {
	Name() string
	Encode(key interface{}) []byte
	Decode(b []byte) interface{}
	Compare(a, b interface{}) int
}

// ValueCodec encodes/decodes a tree's value type. No ordering is required
// of it: where the core does compare values (duplicate-value subtrees), it
// compares their encoded bytes.
type ValueCodec interface {
	Name() string
	Encode(value interface{}) []byte
	Decode(b []byte) interface{}
}

var (
	registryMu sync.RWMutex
	keyCodecs  = map[string]KeyCodec{}
	valCodecs  = map[string]ValueCodec{}
)

// RegisterKeyCodec makes c resolvable by name for trees loaded from disk.
// The built-in codecs in this package register themselves in init();
// callers with custom key types should register before calling
// mvbtree.Open on a file that already references that codec name.
func RegisterKeyCodec(c KeyCodec) {
	registryMu.Lock()
	defer registryMu.Unlock()
	keyCodecs[c.Name()] = c
}

// RegisterValueCodec makes c resolvable by name.
func RegisterValueCodec(c ValueCodec) {
	registryMu.Lock()
	defer registryMu.Unlock()
	valCodecs[c.Name()] = c
}

// LookupKeyCodec resolves a codec identifier persisted in a BTreeInfo record.
func LookupKeyCodec(name string) (KeyCodec, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := keyCodecs[name]
	return c, ok
}

// LookupValueCodec resolves a codec identifier persisted in a BTreeInfo record.
func LookupValueCodec(name string) (ValueCodec, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := valCodecs[name]
	return c, ok
}
