package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// StartPolicy decides what Start does when the client already has an
// active (in-progress or paused) assessment.
type StartPolicy string

const (
	// StartPolicyResume silently returns the existing assessment.
	StartPolicyResume StartPolicy = "resume"
	// StartPolicyReject refuses the start with a conflict error.
	StartPolicyReject StartPolicy = "reject"
)

// DuplicatePolicy decides what SubmitResponse does with a second answer for
// the same question.
type DuplicatePolicy string

const (
	// DuplicatePolicyReject refuses the second submission.
	DuplicatePolicyReject DuplicatePolicy = "reject"
	// DuplicatePolicySupersede replaces the stored answer in place.
	DuplicatePolicySupersede DuplicatePolicy = "supersede"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// DatabaseConfig holds SQLite connection settings. DSN "memory" selects an
// in-memory database.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LoggingConfig holds settings for the zap logger.
type LoggingConfig struct {
	Directory  string `mapstructure:"directory"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// AIConfig holds settings for the adaptive-selection advisor. APIKeyEnv
// names the environment variable that carries the key; the key itself never
// lives in the config file.
type AIConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	APIKeyEnv          string        `mapstructure:"api_key_env"`
	BaseURL            string        `mapstructure:"base_url"`
	Model              string        `mapstructure:"model"`
	Timeout            time.Duration `mapstructure:"timeout"`
	CheckpointInterval int           `mapstructure:"checkpoint_interval"`
}

// AssessmentConfig holds engine policy knobs.
type AssessmentConfig struct {
	QuestionBankPath string          `mapstructure:"question_bank_path"`
	TemplateID       string          `mapstructure:"template_id"`
	StartPolicy      StartPolicy     `mapstructure:"start_policy"`
	DuplicatePolicy  DuplicatePolicy `mapstructure:"duplicate_policy"`
	MinQuestions     int             `mapstructure:"min_questions"`
	MaxQuestions     int             `mapstructure:"max_questions"`
	SecondsPerAnswer int             `mapstructure:"seconds_per_answer"`
}

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	AI         AIConfig         `mapstructure:"ai"`
	Assessment AssessmentConfig `mapstructure:"assessment"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")

	v.SetDefault("database.dsn", "memory")

	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 7)
	v.SetDefault("logging.compress", true)

	v.SetDefault("ai.enabled", true)
	v.SetDefault("ai.api_key_env", "INTAKE_AI_API_KEY")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.timeout", "8s")
	v.SetDefault("ai.checkpoint_interval", 10)

	v.SetDefault("assessment.question_bank_path", "config/questions.yaml")
	v.SetDefault("assessment.template_id", "fh-intake-v1")
	v.SetDefault("assessment.start_policy", string(StartPolicyResume))
	v.SetDefault("assessment.duplicate_policy", string(DuplicatePolicyReject))
	v.SetDefault("assessment.min_questions", 20)
	v.SetDefault("assessment.max_questions", 120)
	v.SetDefault("assessment.seconds_per_answer", 30)
}

// Load reads config.yaml plus INTAKE_* environment overrides and returns
// the validated configuration.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("INTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine: defaults plus env vars carry a full config.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Assessment.StartPolicy {
	case StartPolicyResume, StartPolicyReject:
	default:
		return fmt.Errorf("invalid assessment.start_policy %q", c.Assessment.StartPolicy)
	}
	switch c.Assessment.DuplicatePolicy {
	case DuplicatePolicyReject, DuplicatePolicySupersede:
	default:
		return fmt.Errorf("invalid assessment.duplicate_policy %q", c.Assessment.DuplicatePolicy)
	}
	if c.Assessment.MinQuestions < 0 || c.Assessment.MaxQuestions < c.Assessment.MinQuestions {
		return fmt.Errorf("invalid assessment question bounds (min=%d, max=%d)",
			c.Assessment.MinQuestions, c.Assessment.MaxQuestions)
	}
	if c.AI.CheckpointInterval <= 0 {
		return fmt.Errorf("ai.checkpoint_interval must be positive, got %d", c.AI.CheckpointInterval)
	}
	return nil
}
