package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config: корневая структура конфигурации воркера аудита.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Scanner    ScannerConfig    `mapstructure:"scanner"`
	Generation GenerationConfig `mapstructure:"generation"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Validator  ValidatorConfig  `mapstructure:"validator"`

	v *viper.Viper // источник, нужен для WatchLogLevel
}

// ServerConfig описывает настройки HTTP-сервера (триггер + инспекция + метрики).
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	MetricsPort  int           `mapstructure:"metrics_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (триггеры, блокировки, denylist).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// BrowserConfig: всё, что зависит от окружения запуска headless-браузера.
type BrowserConfig struct {
	ExecPath  string `mapstructure:"exec_path"`  // пусто: chromedp ищет бинарник сам
	RemoteURL string `mapstructure:"remote_url"` // ws://...: подключаемся к уже запущенному браузеру
	Headless  bool   `mapstructure:"headless"`
	NoSandbox bool   `mapstructure:"no_sandbox"`
	UserAgent string `mapstructure:"user_agent"`
	Width     int    `mapstructure:"width"`
	Height    int    `mapstructure:"height"`

	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	// "почти network-idle": не более IdleConnections запросов в полете в течение IdleWindow
	IdleConnections int           `mapstructure:"idle_connections"`
	IdleWindow      time.Duration `mapstructure:"idle_window"`
}

// ScannerConfig: параметры движка правил и подготовки нарушений.
type ScannerConfig struct {
	AxeScriptPath string        `mapstructure:"axe_script_path"`
	RulesFile     string        `mapstructure:"rules_file"` // опциональный YAML с урезанным набором правил
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxViolations int           `mapstructure:"max_violations"`
	MaxHTMLLength int           `mapstructure:"max_html_length"`
}

// GenerationConfig: сервис генерации текста и обвязка надежности.
type GenerationConfig struct {
	Provider    string  `mapstructure:"provider"` // openai, canned
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`

	RateLimit     float64       `mapstructure:"rate_limit"`
	RateBurst     int           `mapstructure:"rate_burst"`
	RetryAttempts uint          `mapstructure:"retry_attempts"`
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	CBFailures    uint32        `mapstructure:"cb_failures"`
}

// PipelineConfig: таймауты и лимиты обогащения и сводки.
type PipelineConfig struct {
	EnrichmentTimeout     time.Duration `mapstructure:"enrichment_timeout"`
	EnrichmentConcurrency int           `mapstructure:"enrichment_concurrency"`
	EnrichmentMaxTokens   int           `mapstructure:"enrichment_max_tokens"`
	SummaryTimeout        time.Duration `mapstructure:"summary_timeout"`
	SummaryMaxTokens      int           `mapstructure:"summary_max_tokens"`
	SummaryTopK           int           `mapstructure:"summary_top_k"`
	MaxRecommendations    int           `mapstructure:"max_recommendations"`
}

// ScoringConfig: веса и потолки формулы оценки.
type ScoringConfig struct {
	CriticalWeight       float64 `mapstructure:"critical_weight"`
	SeriousWeight        float64 `mapstructure:"serious_weight"`
	ModerateWeight       float64 `mapstructure:"moderate_weight"`
	MinorWeight          float64 `mapstructure:"minor_weight"`
	PassBonus            float64 `mapstructure:"pass_bonus"`
	PassBonusCap         float64 `mapstructure:"pass_bonus_cap"`
	IncompletePenalty    float64 `mapstructure:"incomplete_penalty"`
	IncompletePenaltyCap float64 `mapstructure:"incomplete_penalty_cap"`
	RatioPenalty         float64 `mapstructure:"ratio_penalty"`
}

// WorkerConfig: параллельность аудитов и распределенная блокировка.
type WorkerConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
	SweepLimit  int           `mapstructure:"sweep_limit"` // сколько Pending добирать из БД при переподключении
}

// ValidatorConfig: хосты, запрещенные оператором заранее (заливаются в Redis при пустом множестве).
type ValidatorConfig struct {
	DeniedHosts []string `mapstructure:"denied_hosts"`
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. ENV перекрывает файл: BROWSER_NAVIGATION_TIMEOUT=45s перекроет browser.navigation_timeout
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Дефолты (заодно делают ключи видимыми для AutomaticEnv при Unmarshal)
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет: работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.v = v
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 2)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.width", 1366)
	v.SetDefault("browser.height", 900)
	v.SetDefault("browser.navigation_timeout", 30*time.Second)
	v.SetDefault("browser.settle_delay", 3*time.Second)
	v.SetDefault("browser.idle_connections", 2)
	v.SetDefault("browser.idle_window", 500*time.Millisecond)

	v.SetDefault("scanner.axe_script_path", "./assets/axe.min.js")
	v.SetDefault("scanner.rules_file", "")
	v.SetDefault("scanner.timeout", 60*time.Second)
	v.SetDefault("scanner.max_violations", 25)
	v.SetDefault("scanner.max_html_length", 500)

	v.SetDefault("generation.provider", "openai")
	v.SetDefault("generation.base_url", "")
	v.SetDefault("generation.api_key", "")
	v.SetDefault("generation.model", "gpt-4o-mini")
	v.SetDefault("generation.max_tokens", 1000)
	v.SetDefault("generation.temperature", 0.3)
	v.SetDefault("generation.rate_limit", 10)
	v.SetDefault("generation.rate_burst", 25)
	v.SetDefault("generation.retry_attempts", 2)
	v.SetDefault("generation.cb_max_requests", 3)
	v.SetDefault("generation.cb_interval", 30*time.Second)
	v.SetDefault("generation.cb_timeout", 30*time.Second)
	v.SetDefault("generation.cb_failures", 5)

	v.SetDefault("pipeline.enrichment_timeout", 20*time.Second)
	v.SetDefault("pipeline.enrichment_concurrency", 25)
	v.SetDefault("pipeline.enrichment_max_tokens", 800)
	v.SetDefault("pipeline.summary_timeout", 30*time.Second)
	v.SetDefault("pipeline.summary_max_tokens", 1500)
	v.SetDefault("pipeline.summary_top_k", 10)
	v.SetDefault("pipeline.max_recommendations", 5)

	v.SetDefault("scoring.critical_weight", 25)
	v.SetDefault("scoring.serious_weight", 15)
	v.SetDefault("scoring.moderate_weight", 8)
	v.SetDefault("scoring.minor_weight", 3)
	v.SetDefault("scoring.pass_bonus", 0.3)
	v.SetDefault("scoring.pass_bonus_cap", 15)
	v.SetDefault("scoring.incomplete_penalty", 2)
	v.SetDefault("scoring.incomplete_penalty_cap", 10)
	v.SetDefault("scoring.ratio_penalty", 20)

	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.lock_ttl", 5*time.Minute)
	v.SetDefault("worker.sweep_limit", 100)

	v.SetDefault("validator.denied_hosts", []string{})
}

// Validate отсекает конфигурации, с которыми пайплайн не сможет гарантировать таймауты.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("config: database.url is required")
	}
	if c.Browser.NavigationTimeout <= 0 || c.Pipeline.EnrichmentTimeout <= 0 || c.Pipeline.SummaryTimeout <= 0 {
		return errors.New("config: navigation, enrichment and summary timeouts must be positive")
	}
	if c.Scanner.MaxViolations <= 0 {
		return errors.New("config: scanner.max_violations must be positive")
	}
	if c.Worker.Concurrency <= 0 {
		return errors.New("config: worker.concurrency must be positive")
	}
	if c.Pipeline.EnrichmentConcurrency < 0 {
		return errors.New("config: pipeline.enrichment_concurrency must not be negative")
	}
	if c.Worker.LockTTL < c.MaxAuditDuration() {
		return fmt.Errorf("config: worker.lock_ttl %s is shorter than the audit time bound %s", c.Worker.LockTTL, c.MaxAuditDuration())
	}
	return nil
}

// MaxAuditDuration: верхняя граница времени одного аудита:
// навигация + settle + скан + волны обогащения + сводка.
func (c *Config) MaxAuditDuration() time.Duration {
	return c.Browser.NavigationTimeout + c.Browser.SettleDelay + c.Scanner.Timeout +
		time.Duration(c.EnrichmentWaves())*c.Pipeline.EnrichmentTimeout + c.Pipeline.SummaryTimeout
}

// EnrichmentWaves: сколько последовательных волн вызовов нужно на max_violations
// при лимите enrichment_concurrency. 0 в лимите, без ограничения, одна волна.
func (c *Config) EnrichmentWaves() int {
	n, limit := c.Scanner.MaxViolations, c.Pipeline.EnrichmentConcurrency
	if n <= 0 {
		return 0
	}
	if limit <= 0 || limit >= n {
		return 1
	}
	return (n + limit - 1) / limit
}
