package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	OCR      OCRConfig      `yaml:"ocr" mapstructure:"ocr"`
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`
	Workflow WorkflowConfig `yaml:"workflow" mapstructure:"workflow"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// OCRConfig holds extraction service settings.
type OCRConfig struct {
	BaseURL            string  `yaml:"base_url" mapstructure:"base_url"`
	Key                string  `yaml:"key" mapstructure:"key"`
	LocalKeywordAssist bool    `yaml:"local_keyword_assist" mapstructure:"local_keyword_assist"`
	RateLimitRPS       float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
}

// RegistryConfig holds persistence service settings.
type RegistryConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Key     string `yaml:"key" mapstructure:"key"`
}

// WorkflowConfig configures the intake workflow lifecycle.
type WorkflowConfig struct {
	PollIntervalSecs        int    `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	PollMaxAttempts         int    `yaml:"poll_max_attempts" mapstructure:"poll_max_attempts"`
	PlaceholderOnMissingJob bool   `yaml:"placeholder_on_missing_job" mapstructure:"placeholder_on_missing_job"`
	AliasFile               string `yaml:"alias_file" mapstructure:"alias_file"`
}

// StoreConfig configures the run-history database.
type StoreConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	Disabled bool   `yaml:"disabled" mapstructure:"disabled"`
}

// ServerConfig configures the intake HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PO_INTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ocr.base_url", "http://localhost:8000")
	v.SetDefault("ocr.local_keyword_assist", true)
	v.SetDefault("ocr.rate_limit_rps", 0)
	v.SetDefault("registry.base_url", "http://localhost:8000")
	v.SetDefault("workflow.poll_interval_secs", 2)
	v.SetDefault("workflow.poll_max_attempts", 30)
	v.SetDefault("workflow.placeholder_on_missing_job", true)
	v.SetDefault("store.path", "po-intake.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable for the given run mode.
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Workflow.PollIntervalSecs <= 0 {
		problems = append(problems, "workflow.poll_interval_secs must be > 0")
	}
	if c.Workflow.PollMaxAttempts < 1 || c.Workflow.PollMaxAttempts > 300 {
		problems = append(problems, "workflow.poll_max_attempts must be between 1 and 300")
	}
	if !c.Store.Disabled && c.Store.Path == "" {
		problems = append(problems, "store.path is required unless store.disabled is set")
	}

	switch mode {
	case "upload":
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
