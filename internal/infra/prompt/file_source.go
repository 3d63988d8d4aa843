package prompt

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// DefaultFallback is used when the configured prompt file cannot be read.
const DefaultFallback = "You are a careful assistant filling in a questionnaire. Answer briefly and precisely. Return ONLY JSON as instructed."

// FileSource loads the system prompt from disk once and caches it.
type FileSource struct {
	path     string
	fallback string
	logger   *slog.Logger

	once sync.Once
	text string
}

// NewFileSource constructs a source reading path. An empty fallback selects DefaultFallback.
func NewFileSource(path, fallback string, logger *slog.Logger) *FileSource {
	if strings.TrimSpace(fallback) == "" {
		fallback = DefaultFallback
	}
	return &FileSource{
		path:     path,
		fallback: fallback,
		logger:   logger.With("component", "prompt.file"),
	}
}

// SystemPrompt returns the trimmed file contents, or the fallback when the
// file is missing, unreadable or blank.
func (s *FileSource) SystemPrompt() string {
	s.once.Do(func() {
		text, err := s.read()
		if err != nil {
			s.logger.Warn("system prompt unavailable, using fallback", "path", s.path, "error", err)
			s.text = s.fallback
			return
		}
		s.text = text
	})
	return s.text
}

func (s *FileSource) read() (string, error) {
	if strings.TrimSpace(s.path) == "" {
		return "", errors.New("no system prompt path configured")
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", errors.New("system prompt file is empty")
	}
	return text, nil
}
