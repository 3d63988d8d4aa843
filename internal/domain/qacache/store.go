package qacache

import "context"

// Pair is one remembered question/answer exchange.
type Pair struct {
	Q string `json:"q"`
	A string `json:"a"`
}

// Store persists the history between processes.
type Store interface {
	Load(ctx context.Context) ([]Pair, error)
	Save(ctx context.Context, pairs []Pair) error
}
