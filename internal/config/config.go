// Package config loads campaign.yaml with viper, applies environment
// overrides and validates the result before any component is built.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/auth"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/calendar"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/db"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/embeddings"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/generation"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/health"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/pipeline"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/policy"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/publish"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/streaming"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/temporal"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/textproc"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/tracing"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/vectordb"
)

// DefaultPath is used when neither an explicit path nor CONFIG_PATH is set.
const DefaultPath = "/app/config/campaign.yaml"

// EnvPrefix prefixes environment overrides: llm.model is BRANDCAST_LLM_MODEL.
const EnvPrefix = "BRANDCAST"

// DefaultLLMTimeout bounds one generation call.
const DefaultLLMTimeout = 600 * time.Second

type ServiceConfig struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	APIPort     int    `mapstructure:"api_port"`
	AdminPort   int    `mapstructure:"admin_port"`

	// EnableWorker and EnableAPI select what main runs in this process.
	EnableWorker bool `mapstructure:"enable_worker"`
	EnableAPI    bool `mapstructure:"enable_api"`
}

type LLMConfig struct {
	generation.ProviderConfig `mapstructure:",squash"`

	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PipelineConfig struct {
	RetrievalTopK int           `mapstructure:"retrieval_top_k"`
	StageTimeout  time.Duration `mapstructure:"stage_timeout"`
}

type TemplatesConfig struct {
	// Dir overrides builtin templates by name; empty uses builtins only.
	Dir   string `mapstructure:"dir"`
	Watch bool   `mapstructure:"watch"`
}

// Config is the whole of campaign.yaml.
type Config struct {
	Service    ServiceConfig           `mapstructure:"service"`
	LLM        LLMConfig               `mapstructure:"llm"`
	Embeddings embeddings.Config       `mapstructure:"embeddings"`
	Vector     vectordb.Config         `mapstructure:"vector"`
	Redis      RedisConfig             `mapstructure:"redis"`
	Database   db.Config               `mapstructure:"database"`
	Temporal   temporal.Config         `mapstructure:"temporal"`
	Telegram   publish.TelegramConfig  `mapstructure:"telegram"`
	Calendar   calendar.Options        `mapstructure:"calendar"`
	Pipeline   PipelineConfig          `mapstructure:"pipeline"`
	Chunking   textproc.ChunkingConfig `mapstructure:"chunking"`
	Templates  TemplatesConfig         `mapstructure:"templates"`
	Auth       auth.Config             `mapstructure:"auth"`
	Tracing    tracing.Config          `mapstructure:"tracing"`
	Streaming  streaming.Options       `mapstructure:"streaming"`
	Policy     policy.Config           `mapstructure:"policy"`
	Health     health.Config           `mapstructure:"health"`

	// path is the file the config was read from, if any.
	path string
}

// Path returns the file the config was read from, or "".
func (c *Config) Path() string { return c.path }

// ResolvePath picks the config file: explicit, then CONFIG_PATH, then DefaultPath.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.environment", "dev")
	v.SetDefault("service.log_level", "info")
	v.SetDefault("service.api_port", 8080)
	v.SetDefault("service.admin_port", 2112)
	v.SetDefault("service.enable_worker", true)
	v.SetDefault("service.enable_api", true)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.timeout", DefaultLLMTimeout)
	v.SetDefault("llm.requests_per_second", 0)
	v.SetDefault("llm.burst", 1)

	v.SetDefault("embeddings.provider", "http")
	v.SetDefault("embeddings.base_url", "http://localhost:8000")
	v.SetDefault("embeddings.model", "text-embedding-3-small")
	v.SetDefault("embeddings.api_key", "")
	v.SetDefault("embeddings.timeout", 30*time.Second)
	v.SetDefault("embeddings.redis_addr", "")
	v.SetDefault("embeddings.cache_ttl", time.Hour)
	v.SetDefault("embeddings.max_lru", 2048)

	v.SetDefault("vector.host", "localhost")
	v.SetDefault("vector.port", 6333)
	v.SetDefault("vector.api_key", "")
	v.SetDefault("vector.distance", "Cosine")
	v.SetDefault("vector.threshold", 0)
	v.SetDefault("vector.timeout", 5*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("database.driver", db.DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "brandcast")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "brandcast")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "brandcast.db")

	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "")
	v.SetDefault("temporal.activity_workers", 10)
	v.SetDefault("temporal.workflow_workers", 10)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.timeout", 30*time.Second)

	v.SetDefault("calendar.total_days", 30)
	v.SetDefault("calendar.batch_size", 5)
	v.SetDefault("calendar.concurrency", 1)
	v.SetDefault("calendar.content_top_k", 5)

	v.SetDefault("pipeline.retrieval_top_k", 15)
	v.SetDefault("pipeline.stage_timeout", 0)

	v.SetDefault("chunking.max_words", 300)
	v.SetDefault("chunking.overlap_words", 40)

	v.SetDefault("templates.dir", "")
	v.SetDefault("templates.watch", false)

	v.SetDefault("auth.skip", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "brandcast")
	v.SetDefault("auth.token_expiry", 3600)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "brandcast-orchestrator")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")

	v.SetDefault("streaming.capacity", 256)
	v.SetDefault("streaming.stream_max_len", 1000)
	v.SetDefault("streaming.stream_ttl", 24*time.Hour)

	v.SetDefault("policy.enabled", true)
	v.SetDefault("policy.mode", string(policy.ModeEnforce))
	v.SetDefault("policy.path", "")
	v.SetDefault("policy.fail_closed", true)

	v.SetDefault("health.check_interval", 30*time.Second)
}

// conventional environment names accepted next to the BRANDCAST_ ones.
var envAliases = map[string][]string{
	"telegram.bot_token": {"TELEGRAM_BOT_TOKEN"},
	"telegram.chat_id":   {"TELEGRAM_CHAT_ID"},
	"database.host":      {"POSTGRES_HOST"},
	"database.port":      {"POSTGRES_PORT"},
	"database.user":      {"POSTGRES_USER"},
	"database.password":  {"POSTGRES_PASSWORD"},
	"database.database":  {"POSTGRES_DB"},
	"redis.addr":         {"REDIS_ADDR"},
	"vector.host":        {"QDRANT_HOST"},
	"vector.port":        {"QDRANT_PORT"},
	"temporal.host_port": {"TEMPORAL_HOST"},
	"auth.jwt_secret":    {"JWT_SECRET"},
}

// providerKeyEnv names the key variable for each LLM provider.
var providerKeyEnv = map[string]string{
	"openai": "OPENAI_API_KEY",
	"groq":   "GROQ_API_KEY",
	"gemini": "GEMINI_API_KEY",
	"google": "GEMINI_API_KEY",
}

// Load reads the config file (see ResolvePath) and applies environment
// overrides. A missing file is not an error when no path was given
// explicitly; defaults and environment then make up the whole config.
func Load(explicit string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		args := append([]string{key, EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	path := ResolvePath(explicit)
	readFrom := ""
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		readFrom = path
	} else if explicit != "" {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.path = readFrom

	if err := cfg.applyEnvFallbacks(); err != nil {
		return nil, err
	}
	cfg.Policy.Normalize()
	return &cfg, nil
}

func (c *Config) applyEnvFallbacks() error {
	provider := strings.ToLower(c.LLM.Provider)
	if c.LLM.APIKey == "" {
		if name, ok := providerKeyEnv[provider]; ok {
			c.LLM.APIKey = os.Getenv(name)
		}
	}
	if c.Embeddings.APIKey == "" && strings.EqualFold(c.Embeddings.Provider, "gemini") {
		c.Embeddings.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.Embeddings.RedisAddr == "" {
		c.Embeddings.RedisAddr = c.Redis.Addr
	}

	// LLM_TIMEOUT is seconds; a Go duration string is accepted as well.
	if s := os.Getenv("LLM_TIMEOUT"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			c.LLM.Timeout = time.Duration(n) * time.Second
		} else if d, err := time.ParseDuration(s); err == nil {
			c.LLM.Timeout = d
		} else {
			return fmt.Errorf("invalid LLM_TIMEOUT %q", s)
		}
	}
	if c.Pipeline.StageTimeout <= 0 {
		c.Pipeline.StageTimeout = c.LLM.Timeout
	}
	if c.Calendar.Timeout <= 0 {
		c.Calendar.Timeout = c.LLM.Timeout
	}
	return nil
}

// Validate reports every configuration problem at once. Components built
// from an invalid config would fail on their first call instead.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.LLM.APIKey == "" {
		add("llm.api_key is required for provider %q: %w", c.LLM.Provider, generation.ErrMissingAPIKey)
	}
	if c.LLM.Timeout <= 0 {
		add("llm.timeout must be positive")
	}
	if c.LLM.RequestsPerSecond < 0 {
		add("llm.requests_per_second must not be negative")
	}

	if c.Calendar.TotalDays <= 0 {
		add("calendar.total_days must be positive")
	}
	if c.Calendar.BatchSize <= 0 {
		add("calendar.batch_size must be positive")
	} else if c.Calendar.BatchSize > c.Calendar.TotalDays && c.Calendar.TotalDays > 0 {
		add("calendar.batch_size %d exceeds total_days %d", c.Calendar.BatchSize, c.Calendar.TotalDays)
	}
	if c.Calendar.Concurrency < 1 {
		add("calendar.concurrency must be at least 1")
	}
	if c.Pipeline.RetrievalTopK <= 0 || c.Calendar.ContentTopK <= 0 {
		add("retrieval top-k values must be positive")
	}

	switch c.Database.Driver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		add("database.driver %q is not supported", c.Database.Driver)
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		add("telegram.bot_token and telegram.chat_id are required when publishing is enabled")
	}
	if !c.Auth.Skip && c.Service.EnableAPI && c.Auth.JWTSecret == "" && len(c.Auth.APIKeys) == 0 {
		add("auth needs a jwt_secret or api_keys unless auth.skip is set")
	}
	if c.Service.APIPort == c.Service.AdminPort {
		add("service.api_port and service.admin_port must differ")
	}
	if c.Chunking.OverlapWords >= c.Chunking.MaxWords {
		add("chunking.overlap_words must be smaller than max_words")
	}
	return errors.Join(errs...)
}

// GatewayOptions returns generation gateway options for structured calls.
func (c *Config) GatewayOptions() generation.Options {
	return generation.Options{
		Structured:        true,
		RequestsPerSecond: c.LLM.RequestsPerSecond,
		Burst:             c.LLM.Burst,
		DefaultTimeout:    c.LLM.Timeout,
	}
}

// activityMargin covers vector store round trips and scheduling around the
// model and embedding calls counted below.
const activityMargin = 5 * time.Minute

// AnalysisActivityTimeout bounds one analysis activity. Every stage may run
// to its timeout, and the context query plus each stage's persist embeds once.
func (c *Config) AnalysisActivityTimeout() time.Duration {
	stages := len(pipeline.DefaultPlan())
	return time.Duration(stages)*c.Pipeline.StageTimeout +
		time.Duration(stages+1)*c.Embeddings.Timeout +
		activityMargin
}

// CalendarActivityTimeout bounds one calendar activity. At most
// calendar.concurrency windows are in flight and each may run to
// calendar.timeout.
func (c *Config) CalendarActivityTimeout() time.Duration {
	windows := ceilDiv(c.Calendar.TotalDays, c.Calendar.BatchSize)
	rounds := ceilDiv(windows, max(c.Calendar.Concurrency, 1))
	return time.Duration(rounds)*c.Calendar.Timeout + c.Embeddings.Timeout + activityMargin
}

func ceilDiv(n, d int) int {
	if d <= 0 {
		return n
	}
	return (n + d - 1) / d
}
