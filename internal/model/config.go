package model

// Config is the complete claimsynth configuration.
// Values come from (highest to lowest priority) flags, CLAIMSYNTH_* env vars,
// the config file and DefaultConfig.
type Config struct {
	Store        StoreConfig       `yaml:"store" mapstructure:"store"`
	LLM          LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Embedding    EmbeddingConfig   `yaml:"embedding" mapstructure:"embedding"`
	Cache        CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Synthesis    SynthesisConfig   `yaml:"synthesis" mapstructure:"synthesis"`
	Matching     MatchingConfig    `yaml:"matching" mapstructure:"matching"`
	Dedupe       DedupeConfig      `yaml:"dedupe" mapstructure:"dedupe"`
	Evaluation   EvaluationConfig  `yaml:"evaluation" mapstructure:"evaluation"`
	Concurrency  ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitConfig   `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Log          LogConfig         `yaml:"log" mapstructure:"log"`
	Schedule     ScheduleConfig    `yaml:"schedule" mapstructure:"schedule"`
	Fetch        FetchConfig       `yaml:"fetch" mapstructure:"fetch"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // sqlite3, mysql, bolt
	DSN    string `yaml:"dsn" mapstructure:"dsn"`       // File path for sqlite3/bolt, DSN for mysql
}

// LLMConfig configures the decision and grounding provider
type LLMConfig struct {
	Provider     string  `yaml:"provider" mapstructure:"provider"` // openai, anthropic, gemini, ollama, "" (rule-based)
	Model        string  `yaml:"model" mapstructure:"model"`
	APIKey       string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	APIKeyFile   string  `yaml:"api_key_file,omitempty" mapstructure:"api_key_file"`
	BaseURL      string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout      int     `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens    int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature  float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxLogLength int     `yaml:"max_log_length" mapstructure:"max_log_length"`
}

// EmbeddingConfig configures the embedding provider
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" mapstructure:"provider"` // openai, gemini, ollama, hash
	Model      string `yaml:"model" mapstructure:"model"`
	APIKey     string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	APIKeyFile string `yaml:"api_key_file,omitempty" mapstructure:"api_key_file"`
	BaseURL    string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"`
	Timeout    int    `yaml:"timeout" mapstructure:"timeout"` // seconds
}

// CacheConfig configures the embedding cache
type CacheConfig struct {
	Enabled          bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir              string `yaml:"dir" mapstructure:"dir"`
	MemoryTTLMinutes int    `yaml:"memory_ttl_minutes" mapstructure:"memory_ttl_minutes"`
	DiskTTLHours     int    `yaml:"disk_ttl_hours" mapstructure:"disk_ttl_hours"`
}

// SynthesisConfig tunes the synthesis orchestrator
type SynthesisConfig struct {
	BatchSize       int     `yaml:"batch_size" mapstructure:"batch_size"`
	SearchThreshold float64 `yaml:"search_threshold" mapstructure:"search_threshold"`
	MaxCandidates   int     `yaml:"max_candidates" mapstructure:"max_candidates"`
}

// MatchingConfig tunes the opportunity matcher
type MatchingConfig struct {
	SearchThreshold   float64 `yaml:"search_threshold" mapstructure:"search_threshold"`
	MaxResults        int     `yaml:"max_results" mapstructure:"max_results"`
	TopMatches        int     `yaml:"top_matches" mapstructure:"top_matches"`
	MustHaveWeight    float64 `yaml:"must_have_weight" mapstructure:"must_have_weight"`
	StrengthThreshold float64 `yaml:"strength_threshold" mapstructure:"strength_threshold"`
}

// DedupeConfig tunes duplicate detection.
// Thresholds depend on the embedding model and must be re-tuned when it changes.
type DedupeConfig struct {
	StringThreshold   float64 `yaml:"string_threshold" mapstructure:"string_threshold"`
	SemanticThreshold float64 `yaml:"semantic_threshold" mapstructure:"semantic_threshold"`
	ShortLabelLength  int     `yaml:"short_label_length" mapstructure:"short_label_length"`
}

// EvaluationConfig tunes the grounding evaluation
type EvaluationConfig struct {
	SampleSize int     `yaml:"sample_size" mapstructure:"sample_size"`
	BatchSize  int     `yaml:"batch_size" mapstructure:"batch_size"`
	MinQuality float64 `yaml:"min_quality" mapstructure:"min_quality"`
}

// ConcurrencyConfig bounds parallel collaborator calls
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// RateLimitConfig limits calls to each external provider.
// Providers overrides the default per key: openai, anthropic, gemini, ollama for
// completions and openai-embeddings, gemini-embeddings, ollama-embeddings for embeddings.
type RateLimitConfig struct {
	RequestsPerSecond float64                 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int                     `yaml:"burst_size" mapstructure:"burst_size"`
	Providers         map[string]ProviderRate `yaml:"providers,omitempty" mapstructure:"providers"`
}

// ProviderRate is the limit for one provider key
type ProviderRate struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// LogConfig configures structured logging
type LogConfig struct {
	JSON  bool `yaml:"json" mapstructure:"json"`
	Debug bool `yaml:"debug" mapstructure:"debug"`
}

// ScheduleConfig configures the daemon
type ScheduleConfig struct {
	Cron  string   `yaml:"cron" mapstructure:"cron"`
	Users []string `yaml:"users" mapstructure:"users"`
}

// FetchConfig configures loading evidence and opportunity documents over HTTP
type FetchConfig struct {
	Timeout    int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	UserAgent  string `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBytes   int64  `yaml:"max_bytes" mapstructure:"max_bytes"`
	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: "sqlite3",
			DSN:    "claimsynth.db",
		},
		LLM: LLMConfig{
			Provider:     "", // Rule-based decisions unless configured
			Timeout:      60,
			MaxTokens:    4096,
			Temperature:  0.2,
			MaxLogLength: 200,
		},
		Embedding: EmbeddingConfig{
			Provider:   "hash",
			Dimensions: 1536,
			Timeout:    30,
		},
		Cache: CacheConfig{
			Enabled:          true,
			Dir:              ".claimsynth-cache",
			MemoryTTLMinutes: 60,
			DiskTTLHours:     24 * 30,
		},
		Synthesis: SynthesisConfig{
			BatchSize:       10,
			SearchThreshold: 0.5,
			MaxCandidates:   25,
		},
		Matching: MatchingConfig{
			SearchThreshold:   0.4,
			MaxResults:        10,
			TopMatches:        3,
			MustHaveWeight:    0.7,
			StrengthThreshold: 0.4,
		},
		Dedupe: DedupeConfig{
			StringThreshold:   0.92,
			SemanticThreshold: 0.70,
			ShortLabelLength:  10,
		},
		Evaluation: EvaluationConfig{
			SampleSize: 20,
			BatchSize:  10,
			MinQuality: 0.5,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 2,
			BurstSize:         4,
		},
		Schedule: ScheduleConfig{
			Cron: "@every 6h",
		},
		Fetch: FetchConfig{
			Timeout:   30,
			UserAgent: "claimsynth/0.1",
			MaxBytes:  5_000_000,
		},
	}
}
