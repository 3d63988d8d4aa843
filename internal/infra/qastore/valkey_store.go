package qastore

import (
	"context"
	"encoding/json"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/formfiller/internal/domain/qacache"
)

// ValkeyStore keeps the history as a single JSON value in a Valkey-compatible database.
type ValkeyStore struct {
	client valkey.Client
	key    string
}

// NewValkeyStore constructs a store under key.
func NewValkeyStore(client valkey.Client, key string) *ValkeyStore {
	if key == "" {
		key = "formfiller:qa-history"
	}
	return &ValkeyStore{client: client, key: key}
}

// Load implements qacache.Store.
func (s *ValkeyStore) Load(ctx context.Context) ([]qacache.Pair, error) {
	payload, err := s.client.Do(ctx, s.client.B().Get().Key(s.key).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, err
	}
	var pairs []qacache.Pair
	if err := json.Unmarshal([]byte(payload), &pairs); err != nil {
		return nil, err
	}
	return pairs, nil
}

// Save implements qacache.Store.
func (s *ValkeyStore) Save(ctx context.Context, pairs []qacache.Pair) error {
	if pairs == nil {
		pairs = []qacache.Pair{}
	}
	payload, err := json.Marshal(pairs)
	if err != nil {
		return err
	}
	return s.client.Do(ctx, s.client.B().Set().Key(s.key).Value(string(payload)).Build()).Error()
}

var _ qacache.Store = (*ValkeyStore)(nil)
