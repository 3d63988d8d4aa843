package qacache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	apperrors "github.com/yanqian/formfiller/pkg/errors"
)

const textHeader = "Previous questions and answers (for context):"

// Cache keeps the most recent Q->A pairs within the configured limits and
// renders them as prompt context.
type Cache struct {
	mu     sync.Mutex
	cfg    Config
	store  Store
	pairs  []Pair
	logger *slog.Logger

	// held across mutate+Save so the store always ends with the latest history
	persistMu sync.Mutex
}

// New builds a cache and loads previously persisted pairs. A failed load
// starts with an empty history.
func New(ctx context.Context, cfg Config, store Store, logger *slog.Logger) *Cache {
	c := &Cache{
		cfg:    cfg.withDefaults(),
		store:  store,
		logger: logger.With("component", "qacache.cache"),
	}
	if store == nil {
		return c
	}
	pairs, err := store.Load(ctx)
	if err != nil {
		c.logger.Warn("load qa history failed, starting empty", "error", err)
		return c
	}
	for _, p := range pairs {
		c.pairs = append(c.pairs, Pair{Q: c.clean(p.Q), A: c.clean(p.A)})
	}
	c.evict()
	return c
}

// Add appends a pair, evicts the oldest pairs beyond the limits and persists
// the result. The in-memory history is updated even when persistence fails.
func (c *Cache) Add(ctx context.Context, question, answer string) error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	c.pairs = append(c.pairs, Pair{Q: c.clean(question), A: c.clean(answer)})
	c.evict()
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	return c.persist(ctx, snapshot)
}

// Clear drops every pair and persists the empty history.
func (c *Cache) Clear(ctx context.Context) error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	c.pairs = nil
	c.mu.Unlock()
	return c.persist(ctx, []Pair{})
}

// Pairs returns a copy of the retained history, oldest first.
func (c *Cache) Pairs() []Pair {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Len reports the number of retained pairs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pairs)
}

// Chars reports the character budget currently used.
func (c *Cache) Chars() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.charsLocked()
}

// AsText renders the history for a prompt, or "" when it is empty.
func (c *Cache) AsText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pairs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(textHeader)
	for _, p := range c.pairs {
		sb.WriteString("\n- Q: ")
		sb.WriteString(p.Q)
		sb.WriteString(" | A: ")
		sb.WriteString(p.A)
	}
	return sb.String()
}

func (c *Cache) evict() {
	for len(c.pairs) > c.cfg.MaxPairs {
		c.pairs = c.pairs[1:]
	}
	for len(c.pairs) > 0 && c.charsLocked() > c.cfg.MaxChars {
		c.pairs = c.pairs[1:]
	}
}

func (c *Cache) charsLocked() int {
	total := 0
	for _, p := range c.pairs {
		total += utf8.RuneCountInString(p.Q) + utf8.RuneCountInString(p.A) + pairOverhead
	}
	return total
}

func (c *Cache) snapshotLocked() []Pair {
	out := make([]Pair, len(c.pairs))
	copy(out, c.pairs)
	return out
}

func (c *Cache) persist(ctx context.Context, pairs []Pair) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Save(ctx, pairs); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageError, "persist qa history", err)
	}
	return nil
}

func (c *Cache) clean(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	if utf8.RuneCountInString(s) <= c.cfg.MaxFieldChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:c.cfg.MaxFieldChars])
}
