package db

import "context"

// Namespaced prefixes every key of an underlying store. Closing is left to the
// owner of the underlying store.
type Namespaced struct {
	store  Store
	prefix string
}

// Namespace scopes store to prefix.
func Namespace(store Store, prefix string) *Namespaced {
	return &Namespaced{store: store, prefix: prefix}
}

// ProfilePrefix is the namespace of one user's profile data.
func ProfilePrefix(userID string) string { return "profile:" + userID + ":" }

func (n *Namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.store.Get(ctx, n.prefix+key)
}

func (n *Namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.store.Set(ctx, n.prefix+key, value)
}

func (n *Namespaced) SetMany(ctx context.Context, values map[string][]byte) error {
	prefixed := make(map[string][]byte, len(values))
	for k, v := range values {
		prefixed[n.prefix+k] = v
	}
	return n.store.SetMany(ctx, prefixed)
}

func (n *Namespaced) Remove(ctx context.Context, key string) error {
	return n.store.Remove(ctx, n.prefix+key)
}
