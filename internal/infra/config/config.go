package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration used across the service and CLI.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	LLM      LLMConfig      `yaml:"llm"`
	Prompt   PromptConfig   `yaml:"prompt"`
	QACache  QACacheConfig  `yaml:"qaCache"`
	Form     FormConfig     `yaml:"form"`
	RunLog   RunLogConfig   `yaml:"runLog"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Jobs     JobsConfig     `yaml:"jobs"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address        string          `yaml:"address"`
	ReadTimeout    time.Duration   `yaml:"readTimeout"`
	WriteTimeout   time.Duration   `yaml:"writeTimeout"`
	AllowedOrigins []string        `yaml:"allowedOrigins"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
	Retry          RetryConfig     `yaml:"retry"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// RetryConfig configures best-effort retries for idempotent requests.
type RetryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseBackoff time.Duration `yaml:"baseBackoff"`
	Exclude     []string      `yaml:"exclude"`
}

// LLMConfig selects and tunes the answering model.
type LLMConfig struct {
	Provider    string         `yaml:"provider"`
	Temperature float64        `yaml:"temperature"`
	Timeout     time.Duration  `yaml:"timeout"`
	MaxRetries  int            `yaml:"maxRetries"`
	Groq        ProviderConfig `yaml:"groq"`
	Gemini      ProviderConfig `yaml:"gemini"`
}

// ProviderConfig holds per-provider credentials and model choice.
type ProviderConfig struct {
	APIKey  string `yaml:"apiKey"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"baseUrl"`
}

// PromptConfig locates the system prompt.
type PromptConfig struct {
	SystemPromptPath string `yaml:"systemPromptPath"`
	Fallback         string `yaml:"fallback"`
}

// QACacheConfig bounds and persists the Q->A history.
type QACacheConfig struct {
	Path           string       `yaml:"path"`
	MaxPairs       int          `yaml:"maxPairs"`
	MaxChars       int          `yaml:"maxChars"`
	MaxFieldChars  int          `yaml:"maxFieldChars"`
	ResetOnSection bool         `yaml:"resetOnSection"`
	Valkey         ValkeyConfig `yaml:"valkey"`
}

// ValkeyConfig contains connection information for a Valkey-backed component.
type ValkeyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Key     string `yaml:"key"`
}

// FormConfig tunes form access and answer validation.
type FormConfig struct {
	UserAgent     string        `yaml:"userAgent"`
	FetchTimeout  time.Duration `yaml:"fetchTimeout"`
	SubmitTimeout time.Duration `yaml:"submitTimeout"`
	Delay         time.Duration `yaml:"delay"`
	Strict        bool          `yaml:"strict"`
	Submit        bool          `yaml:"submit"`
}

// RunLogConfig selects where fill runs are recorded.
type RunLogConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// SnapshotConfig points at an S3-compatible bucket for form/report snapshots.
type SnapshotConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"useSSL"`
}

// JobsConfig selects the background fill queue.
type JobsConfig struct {
	Valkey ValkeyConfig `yaml:"valkey"`
}

// Load reads configuration from .env, a YAML file and environment variables.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	envString("HTTP_ADDRESS", &cfg.HTTP.Address)
	envList("HTTP_ALLOWED_ORIGINS", &cfg.HTTP.AllowedOrigins)
	envBool("HTTP_RATE_LIMIT_ENABLED", &cfg.HTTP.RateLimit.Enabled)
	envInt("HTTP_RATE_LIMIT_RPM", &cfg.HTTP.RateLimit.RequestsPerMinute)
	envInt("HTTP_RATE_LIMIT_BURST", &cfg.HTTP.RateLimit.Burst)
	envBool("HTTP_RETRY_ENABLED", &cfg.HTTP.Retry.Enabled)
	envInt("HTTP_RETRY_MAX_ATTEMPTS", &cfg.HTTP.Retry.MaxAttempts)
	envDuration("HTTP_RETRY_BASE_BACKOFF", &cfg.HTTP.Retry.BaseBackoff)

	envString("LLM_PROVIDER", &cfg.LLM.Provider)
	envFloat("LLM_TEMPERATURE", &cfg.LLM.Temperature)
	envDuration("LLM_TIMEOUT", &cfg.LLM.Timeout)
	envInt("LLM_MAX_RETRIES", &cfg.LLM.MaxRetries)
	envString("GROQ_API_KEY", &cfg.LLM.Groq.APIKey)
	envString("GROQ_MODEL", &cfg.LLM.Groq.Model)
	envString("GROQ_BASE_URL", &cfg.LLM.Groq.BaseURL)
	envString("GEMINI_API_KEY", &cfg.LLM.Gemini.APIKey)
	envString("GEMINI_MODEL", &cfg.LLM.Gemini.Model)
	envString("GEMINI_BASE_URL", &cfg.LLM.Gemini.BaseURL)

	envString("SYSTEM_PROMPT_PATH", &cfg.Prompt.SystemPromptPath)

	envString("QA_CACHE_PATH", &cfg.QACache.Path)
	envInt("QA_CACHE_MAX_PAIRS", &cfg.QACache.MaxPairs)
	envInt("QA_CACHE_MAX_CHARS", &cfg.QACache.MaxChars)
	envBool("QA_CACHE_RESET_ON_SECTION", &cfg.QACache.ResetOnSection)
	envBool("QA_CACHE_VALKEY_ENABLED", &cfg.QACache.Valkey.Enabled)
	envString("QA_CACHE_VALKEY_ADDR", &cfg.QACache.Valkey.Addr)
	envString("QA_CACHE_VALKEY_KEY", &cfg.QACache.Valkey.Key)

	envString("FORM_USER_AGENT", &cfg.Form.UserAgent)
	envDuration("FORM_FETCH_TIMEOUT", &cfg.Form.FetchTimeout)
	envDuration("FORM_SUBMIT_TIMEOUT", &cfg.Form.SubmitTimeout)
	envDuration("FORM_DELAY", &cfg.Form.Delay)
	envBool("FORM_STRICT", &cfg.Form.Strict)
	envBool("FORM_SUBMIT", &cfg.Form.Submit)

	envString("RUNLOG_POSTGRES_DSN", &cfg.RunLog.Postgres.DSN)
	envInt32("RUNLOG_POSTGRES_MAX_CONNS", &cfg.RunLog.Postgres.MaxConns)
	envInt32("RUNLOG_POSTGRES_MIN_CONNS", &cfg.RunLog.Postgres.MinConns)

	envBool("SNAPSHOT_ENABLED", &cfg.Snapshot.Enabled)
	envString("SNAPSHOT_ENDPOINT", &cfg.Snapshot.Endpoint)
	envString("SNAPSHOT_ACCESS_KEY", &cfg.Snapshot.AccessKey)
	envString("SNAPSHOT_SECRET_KEY", &cfg.Snapshot.SecretKey)
	envString("SNAPSHOT_BUCKET", &cfg.Snapshot.Bucket)
	envString("SNAPSHOT_REGION", &cfg.Snapshot.Region)
	envBool("SNAPSHOT_USE_SSL", &cfg.Snapshot.UseSSL)

	envBool("JOBS_VALKEY_ENABLED", &cfg.Jobs.Valkey.Enabled)
	envString("JOBS_VALKEY_ADDR", &cfg.Jobs.Valkey.Addr)
	envString("JOBS_VALKEY_KEY", &cfg.Jobs.Valkey.Key)

	cfg.LLM.Groq.APIKey = cleanSecret(cfg.LLM.Groq.APIKey)
	cfg.LLM.Gemini.APIKey = cleanSecret(cfg.LLM.Gemini.APIKey)
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
}

// cleanSecret drops whitespace and the quotes people paste around keys in .env files.
func cleanSecret(v string) string {
	v = strings.TrimSpace(v)
	v = strings.Trim(v, `"`)
	return strings.Trim(v, `'`)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envList(key string, dst *[]string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "1" || strings.EqualFold(v, "true")
	}
}

// Unparsable numbers and durations are ignored so the previous value stays.
func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = parsed
		}
	}
}

func envInt32(key string, dst *int32) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32); err == nil {
			*dst = int32(parsed)
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*dst = parsed
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			*dst = parsed
		}
	}
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				Burst:             20,
			},
			Retry: RetryConfig{
				Enabled:     true,
				MaxAttempts: 3,
				BaseBackoff: 150 * time.Millisecond,
				Exclude: []string{
					"/api/v1/fills",
				},
			},
		},
		LLM: LLMConfig{
			Provider:    "groq",
			Temperature: 0.1,
			Timeout:     60 * time.Second,
			MaxRetries:  2,
			Groq: ProviderConfig{
				Model:   "llama-3.3-70b-versatile",
				BaseURL: "https://api.groq.com/openai/v1",
			},
			Gemini: ProviderConfig{
				Model:   "gemini-2.5-flash-lite",
				BaseURL: "https://generativelanguage.googleapis.com/v1beta",
			},
		},
		Prompt: PromptConfig{
			SystemPromptPath: "system_prompt.txt",
		},
		QACache: QACacheConfig{
			MaxPairs:       5,
			MaxChars:       900,
			MaxFieldChars:  200,
			ResetOnSection: true,
			Valkey: ValkeyConfig{
				Key: "formfiller:qa-history",
			},
		},
		Form: FormConfig{
			FetchTimeout:  20 * time.Second,
			SubmitTimeout: 20 * time.Second,
			Delay:         300 * time.Millisecond,
			Strict:        true,
		},
		RunLog: RunLogConfig{
			Postgres: PostgresConfig{
				MaxConns: 4,
			},
		},
		Snapshot: SnapshotConfig{
			Bucket: "formfiller",
			Region: "us-east-1",
		},
		Jobs: JobsConfig{
			Valkey: ValkeyConfig{
				Key: "formfiller:jobs",
			},
		},
	}
}

// Validate ensures the configuration is safe to use. Provider API keys are
// checked only when a provider is built.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	switch c.LLM.Provider {
	case "groq", "gemini":
	default:
		return fmt.Errorf("llm.provider must be groq or gemini, got %q", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be within [0, 2]")
	}
	if c.LLM.Timeout <= 0 {
		return errors.New("llm.timeout must be positive")
	}
	if c.LLM.MaxRetries < 0 {
		return errors.New("llm.maxRetries cannot be negative")
	}
	if c.QACache.MaxPairs < 0 {
		return errors.New("qaCache.maxPairs cannot be negative")
	}
	if c.QACache.MaxChars < 0 {
		return errors.New("qaCache.maxChars cannot be negative")
	}
	if c.QACache.MaxFieldChars <= 0 {
		return errors.New("qaCache.maxFieldChars must be positive")
	}
	if c.QACache.Valkey.Enabled && strings.TrimSpace(c.QACache.Valkey.Addr) == "" {
		return errors.New("qaCache.valkey.addr cannot be empty when valkey history is enabled")
	}
	if c.Form.Delay < 0 {
		return errors.New("form.delay cannot be negative")
	}
	if c.Jobs.Valkey.Enabled && strings.TrimSpace(c.Jobs.Valkey.Addr) == "" {
		return errors.New("jobs.valkey.addr cannot be empty when the valkey queue is enabled")
	}
	if c.Snapshot.Enabled {
		if strings.TrimSpace(c.Snapshot.Endpoint) == "" {
			return errors.New("snapshot.endpoint cannot be empty when snapshots are enabled")
		}
		if strings.TrimSpace(c.Snapshot.Bucket) == "" {
			return errors.New("snapshot.bucket cannot be empty when snapshots are enabled")
		}
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
	}
	if c.HTTP.Retry.Enabled {
		if c.HTTP.Retry.MaxAttempts <= 0 {
			return errors.New("http.retry.maxAttempts must be positive")
		}
		if c.HTTP.Retry.BaseBackoff <= 0 {
			return errors.New("http.retry.baseBackoff must be positive")
		}
	}
	return nil
}
