// Package config provides Viper-based configuration loading for the attribute server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variable overrides, e.g. DDGAS_LOGGING_LEVEL.
const EnvPrefix = "DDGAS"

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// Enabled turns attribute persistence on. When false the remaining
	// fields are not validated and no pool is opened.
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// OutputPaths are zap sink URLs or file paths. Empty means stderr.
	OutputPaths []string `mapstructure:"output_paths"`
}

// GameServerConfig holds the attribute server runtime settings.
type GameServerConfig struct {
	// Authority marks this process as the authoritative simulation. Level-up
	// and regeneration only mutate attributes when it is set.
	Authority bool `mapstructure:"authority"`
	// StatsTable is a curve table file or a directory of them (YAML or CSV).
	StatsTable string `mapstructure:"stats_table"`
	// CharactersDir holds the character definition YAML files.
	CharactersDir string `mapstructure:"characters_dir"`
	// RegenInterval is the regeneration tick period.
	RegenInterval time.Duration `mapstructure:"regen_interval"`
	// AutosaveInterval is the snapshot persistence period. Zero disables autosave.
	AutosaveInterval time.Duration `mapstructure:"autosave_interval"`
	// AutosaveConcurrency bounds concurrent snapshot writes.
	AutosaveConcurrency int `mapstructure:"autosave_concurrency"`
	// ReplicationBuffer is the capacity of each attribute change feed.
	ReplicationBuffer int `mapstructure:"replication_buffer"`
}

// ScriptingConfig holds Lua damage script settings.
type ScriptingConfig struct {
	// Root is a directory with one subdirectory per script zone. Empty disables scripting.
	Root string `mapstructure:"root"`
	// InstructionLimit is the per-call Lua opcode budget. 0 uses the default.
	InstructionLimit int `mapstructure:"instruction_limit"`
}

// Config is the top-level application configuration.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	GameServer GameServerConfig `mapstructure:"gameserver"`
	Scripting  ScriptingConfig  `mapstructure:"scripting"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if c.Database.Enabled {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGameServer(c.GameServer); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Scripting.InstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("scripting.instruction_limit must be >= 0, got %d", c.Scripting.InstructionLimit))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateGameServer(g GameServerConfig) error {
	var errs []string
	if g.StatsTable == "" {
		errs = append(errs, "gameserver.stats_table must not be empty")
	}
	if g.CharactersDir == "" {
		errs = append(errs, "gameserver.characters_dir must not be empty")
	}
	if g.RegenInterval <= 0 {
		errs = append(errs, fmt.Sprintf("gameserver.regen_interval must be > 0, got %s", g.RegenInterval))
	}
	if g.AutosaveInterval < 0 {
		errs = append(errs, fmt.Sprintf("gameserver.autosave_interval must be >= 0, got %s", g.AutosaveInterval))
	}
	if g.AutosaveConcurrency < 1 {
		errs = append(errs, fmt.Sprintf("gameserver.autosave_concurrency must be >= 1, got %d", g.AutosaveConcurrency))
	}
	if g.ReplicationBuffer < 1 {
		errs = append(errs, fmt.Sprintf("gameserver.replication_buffer must be >= 1, got %d", g.ReplicationBuffer))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance holding only the default values.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "ddgas")
	v.SetDefault("database.password", "ddgas")
	v.SetDefault("database.name", "ddgas")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("gameserver.authority", true)
	v.SetDefault("gameserver.stats_table", "content/stats")
	v.SetDefault("gameserver.characters_dir", "content/characters")
	v.SetDefault("gameserver.regen_interval", "1s")
	v.SetDefault("gameserver.autosave_interval", "30s")
	v.SetDefault("gameserver.autosave_concurrency", 4)
	v.SetDefault("gameserver.replication_buffer", 256)

	v.SetDefault("scripting.root", "")
	v.SetDefault("scripting.instruction_limit", 0)
}
