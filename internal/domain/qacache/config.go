package qacache

// Config bounds the retained history.
type Config struct {
	MaxPairs      int
	MaxChars      int
	MaxFieldChars int
}

const (
	DefaultMaxPairs      = 5
	DefaultMaxChars      = 900
	DefaultMaxFieldChars = 200

	// pairOverhead approximates the "- Q:  | A: " framing each pair adds to a prompt.
	pairOverhead = 6
)

func (c Config) withDefaults() Config {
	if c.MaxFieldChars <= 0 {
		c.MaxFieldChars = DefaultMaxFieldChars
	}
	if c.MaxPairs < 0 {
		c.MaxPairs = 0
	}
	if c.MaxChars < 0 {
		c.MaxChars = 0
	}
	return c
}
