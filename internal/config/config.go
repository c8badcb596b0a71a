package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "HSEWRAPPED_CONFIG"
	envPrefix     = "HSEWRAPPED"
)

// Usage store drivers.
const (
	UsageDriverJSON     = "json"
	UsageDriverPostgres = "postgres"
	UsageDriverRedis    = "redis"
)

// Config holds high-level settings required across the application.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Admission AdmissionConfig `yaml:"admission"`
	Portfolio PortfolioConfig `yaml:"portfolio"`
	Showcase  ShowcaseConfig  `yaml:"showcase"`
	Browser   BrowserConfig   `yaml:"browser"`
	Render    RenderConfig    `yaml:"render"`
	Usage     UsageConfig     `yaml:"usage"`
	Health    HealthConfig    `yaml:"health"`
	Sweeper   SweeperConfig   `yaml:"sweeper"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// TelegramConfig wires everything required to talk to the Bot API.
type TelegramConfig struct {
	APIURL       string        `yaml:"apiUrl"`
	BotToken     string        `yaml:"botToken"`
	AdminIDs     []int64       `yaml:"adminIds"`
	PollTimeout  time.Duration `yaml:"pollTimeout"`
	WelcomeVideo string        `yaml:"welcomeVideo"`
}

// AdmissionConfig bounds concurrent work and per-user request frequency.
type AdmissionConfig struct {
	MaxConcurrent  int           `yaml:"maxConcurrent"`
	Cooldown       time.Duration `yaml:"cooldown"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// PortfolioConfig describes the portfolio site and the pacing of requests to it.
type PortfolioConfig struct {
	BaseURL         string        `yaml:"baseUrl"`
	HTTPTimeout     time.Duration `yaml:"httpTimeout"`
	ItemDelay       time.Duration `yaml:"itemDelay"`
	EnrichmentDelay time.Duration `yaml:"enrichmentDelay"`
}

// ShowcaseConfig describes the external design showcase APIs.
type ShowcaseConfig struct {
	LikesURL    string        `yaml:"likesUrl"`
	ViewsURL    string        `yaml:"viewsUrl"`
	Origin      string        `yaml:"origin"`
	Context     string        `yaml:"context"`
	HTTPTimeout time.Duration `yaml:"httpTimeout"`
}

// BrowserConfig drives the headless browser sandbox.
type BrowserConfig struct {
	ExecPath   string        `yaml:"execPath"`
	Headless   bool          `yaml:"headless"`
	NavTimeout time.Duration `yaml:"navTimeout"`
	ViewWait   time.Duration `yaml:"viewWait"`
	SettleTime time.Duration `yaml:"settleTime"`
}

// RenderConfig controls slide image output.
type RenderConfig struct {
	OutputDir string  `yaml:"outputDir"`
	Width     int64   `yaml:"width"`
	Height    int64   `yaml:"height"`
	Scale     float64 `yaml:"scale"`
}

// UsageConfig selects the usage-log backend.
type UsageConfig struct {
	Driver    string `yaml:"driver"`
	Path      string `yaml:"path"`
	DSN       string `yaml:"dsn"`
	RedisAddr string `yaml:"redisAddr"`
	RedisDB   int    `yaml:"redisDb"`
}

// HealthConfig exposes liveness and metrics endpoints.
type HealthConfig struct {
	Addr string `yaml:"addr"`
}

// SweeperConfig defines orphaned artifact cleanup.
type SweeperConfig struct {
	Interval time.Duration `yaml:"interval"`
	MaxAge   time.Duration `yaml:"maxAge"`
}

// LoggingConfig sets the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// envOverlay lists every setting that may come from the environment. Bare
// names are accepted as a fallback to the prefixed ones.
type envOverlay struct {
	BotToken       string        `envconfig:"TELEGRAM_BOT_TOKEN"`
	AdminIDs       []int64       `envconfig:"ADMIN_ID"`
	TelegramAPIURL string        `envconfig:"TELEGRAM_API_URL"`
	MaxConcurrent  int           `envconfig:"MAX_CONCURRENT"`
	Cooldown       time.Duration `envconfig:"COOLDOWN"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT"`
	BrowserPath    string        `envconfig:"BROWSER_PATH"`
	OutputDir      string        `envconfig:"OUTPUT_DIR"`
	UsageDriver    string        `envconfig:"USAGE_DRIVER"`
	UsagePath      string        `envconfig:"USAGE_PATH"`
	DatabaseDSN    string        `envconfig:"DATABASE_DSN"`
	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	HealthAddr     string        `envconfig:"HEALTH_ADDR"`
	LogLevel       string        `envconfig:"LOG_LEVEL"`
}

// Load reads .env and YAML configuration (if present) and applies environment overrides.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: cannot load .env: %v", err)
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	var overlay envOverlay
	if err := envconfig.Process(envPrefix, &overlay); err != nil {
		log.Printf("config: cannot parse environment: %v (ignoring overrides)", err)
	} else {
		cfg.applyEnvOverrides(overlay)
	}

	return cfg
}

// Validate reports settings the bot cannot run with.
func (c Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token is required")
	}
	if c.Admission.MaxConcurrent <= 0 {
		return fmt.Errorf("admission max concurrent must be positive")
	}
	if c.Admission.Cooldown < 0 {
		return fmt.Errorf("admission cooldown cannot be negative")
	}
	if c.Admission.RequestTimeout <= 0 {
		return fmt.Errorf("admission request timeout must be positive")
	}
	if c.Render.OutputDir == "" {
		return fmt.Errorf("render output dir cannot be empty")
	}
	switch c.Usage.Driver {
	case UsageDriverJSON:
		if c.Usage.Path == "" {
			return fmt.Errorf("usage path is required for the json driver")
		}
	case UsageDriverPostgres:
		if c.Usage.DSN == "" {
			return fmt.Errorf("usage dsn is required for the postgres driver")
		}
	case UsageDriverRedis:
		if c.Usage.RedisAddr == "" {
			return fmt.Errorf("usage redis address is required for the redis driver")
		}
	default:
		return fmt.Errorf("invalid usage driver: %s (must be one of: json, postgres, redis)", c.Usage.Driver)
	}
	return nil
}

// IsAdmin reports whether id is on the static admin allow-list.
func (t TelegramConfig) IsAdmin(id int64) bool {
	for _, admin := range t.AdminIDs {
		if admin == id {
			return true
		}
	}
	return false
}

func (c *Config) applyEnvOverrides(o envOverlay) {
	if o.BotToken != "" {
		c.Telegram.BotToken = o.BotToken
	}
	if len(o.AdminIDs) > 0 {
		c.Telegram.AdminIDs = o.AdminIDs
	}
	if o.TelegramAPIURL != "" {
		c.Telegram.APIURL = o.TelegramAPIURL
	}

	if o.MaxConcurrent > 0 {
		c.Admission.MaxConcurrent = o.MaxConcurrent
	}
	if o.Cooldown > 0 {
		c.Admission.Cooldown = o.Cooldown
	}
	if o.RequestTimeout > 0 {
		c.Admission.RequestTimeout = o.RequestTimeout
	}

	if o.BrowserPath != "" {
		c.Browser.ExecPath = o.BrowserPath
	}
	if o.OutputDir != "" {
		c.Render.OutputDir = o.OutputDir
	}

	if o.UsageDriver != "" {
		c.Usage.Driver = o.UsageDriver
	}
	if o.UsagePath != "" {
		c.Usage.Path = o.UsagePath
	}
	if o.DatabaseDSN != "" {
		c.Usage.DSN = o.DatabaseDSN
	}
	if o.RedisAddr != "" {
		c.Usage.RedisAddr = o.RedisAddr
	}

	if o.HealthAddr != "" {
		c.Health.Addr = o.HealthAddr
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
}

func mergeConfig(base, override Config) Config {
	if override.Telegram.APIURL != "" {
		base.Telegram.APIURL = override.Telegram.APIURL
	}
	if override.Telegram.BotToken != "" {
		base.Telegram.BotToken = override.Telegram.BotToken
	}
	if len(override.Telegram.AdminIDs) > 0 {
		base.Telegram.AdminIDs = override.Telegram.AdminIDs
	}
	if override.Telegram.PollTimeout > 0 {
		base.Telegram.PollTimeout = override.Telegram.PollTimeout
	}
	if override.Telegram.WelcomeVideo != "" {
		base.Telegram.WelcomeVideo = override.Telegram.WelcomeVideo
	}

	if override.Admission.MaxConcurrent > 0 {
		base.Admission.MaxConcurrent = override.Admission.MaxConcurrent
	}
	if override.Admission.Cooldown > 0 {
		base.Admission.Cooldown = override.Admission.Cooldown
	}
	if override.Admission.RequestTimeout > 0 {
		base.Admission.RequestTimeout = override.Admission.RequestTimeout
	}

	if override.Portfolio.BaseURL != "" {
		base.Portfolio.BaseURL = override.Portfolio.BaseURL
	}
	if override.Portfolio.HTTPTimeout > 0 {
		base.Portfolio.HTTPTimeout = override.Portfolio.HTTPTimeout
	}
	if override.Portfolio.ItemDelay > 0 {
		base.Portfolio.ItemDelay = override.Portfolio.ItemDelay
	}
	if override.Portfolio.EnrichmentDelay > 0 {
		base.Portfolio.EnrichmentDelay = override.Portfolio.EnrichmentDelay
	}

	if override.Showcase.LikesURL != "" {
		base.Showcase.LikesURL = override.Showcase.LikesURL
	}
	if override.Showcase.ViewsURL != "" {
		base.Showcase.ViewsURL = override.Showcase.ViewsURL
	}
	if override.Showcase.Origin != "" {
		base.Showcase.Origin = override.Showcase.Origin
	}
	if override.Showcase.Context != "" {
		base.Showcase.Context = override.Showcase.Context
	}
	if override.Showcase.HTTPTimeout > 0 {
		base.Showcase.HTTPTimeout = override.Showcase.HTTPTimeout
	}

	if override.Browser.ExecPath != "" {
		base.Browser.ExecPath = override.Browser.ExecPath
	}
	if override.Browser.NavTimeout > 0 {
		base.Browser.NavTimeout = override.Browser.NavTimeout
	}
	if override.Browser.ViewWait > 0 {
		base.Browser.ViewWait = override.Browser.ViewWait
	}
	if override.Browser.SettleTime > 0 {
		base.Browser.SettleTime = override.Browser.SettleTime
	}

	if override.Render.OutputDir != "" {
		base.Render.OutputDir = override.Render.OutputDir
	}
	if override.Render.Width > 0 {
		base.Render.Width = override.Render.Width
	}
	if override.Render.Height > 0 {
		base.Render.Height = override.Render.Height
	}
	if override.Render.Scale > 0 {
		base.Render.Scale = override.Render.Scale
	}

	if override.Usage.Driver != "" {
		base.Usage = override.Usage
	}

	if override.Health.Addr != "" {
		base.Health.Addr = override.Health.Addr
	}

	if override.Sweeper.Interval > 0 {
		base.Sweeper.Interval = override.Sweeper.Interval
	}
	if override.Sweeper.MaxAge > 0 {
		base.Sweeper.MaxAge = override.Sweeper.MaxAge
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Telegram: TelegramConfig{
			APIURL:       "https://api.telegram.org",
			PollTimeout:  30 * time.Second,
			WelcomeVideo: "assets/images/welcome.mp4",
		},
		Admission: AdmissionConfig{
			MaxConcurrent:  3,
			Cooldown:       30 * time.Second,
			RequestTimeout: 2 * time.Minute,
		},
		Portfolio: PortfolioConfig{
			BaseURL:         "https://portfolio.hse.ru",
			HTTPTimeout:     20 * time.Second,
			ItemDelay:       500 * time.Millisecond,
			EnrichmentDelay: time.Second,
		},
		Showcase: ShowcaseConfig{
			LikesURL:    "https://api.mediiia.ru/qualities/api/LikeStatistics/GetByEntity",
			ViewsURL:    "https://api.mediiia.ru/qualities/api/View/UpdateView",
			Origin:      "https://hsedesign.ru",
			Context:     "hsedesign",
			HTTPTimeout: 15 * time.Second,
		},
		Browser: BrowserConfig{
			Headless:   true,
			NavTimeout: 10 * time.Second,
			ViewWait:   3 * time.Second,
			SettleTime: 2 * time.Second,
		},
		Render: RenderConfig{
			OutputDir: "assets/generated",
			Width:     1080,
			Height:    1920,
			Scale:     2,
		},
		Usage: UsageConfig{
			Driver: UsageDriverJSON,
			Path:   "data/users.json",
		},
		Health:  HealthConfig{Addr: ":8090"},
		Sweeper: SweeperConfig{Interval: 10 * time.Minute, MaxAge: 30 * time.Minute},
		Logging: LoggingConfig{Level: "info"},
	}
}
