// Package config loads the fuelmig settings from a YAML file and FUELMIG_
// environment variables. Environment variables take precedence over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"

	FormatText = "text"
	FormatJSON = "json"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Database Database
	Log      Log
	// MasterIP is the address of the Fuel master node, used by projections.
	MasterIP string
	// File is the config file that was read, empty when none was found.
	File string
}

type Database struct {
	Driver          string
	DSN             string
	Name            string
	MigrationsTable string
	// ScriptsDir holds SQL revisions applied on top of the Fuel chain.
	ScriptsDir string
}

type Log struct {
	Level  string
	Format string
}

// Load reads configFile, or the first of ./fuelmig.yaml and
// <user config dir>/fuelmig/config.yaml that exists when configFile is empty.
// No config file at all is fine.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// FUELMIG_DATABASE_DSN maps to database.dsn
	v.SetEnvPrefix("FUELMIG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.name", "")
	v.SetDefault("database.migrations_table", "migrations_log")
	v.SetDefault("database.scripts_dir", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", FormatText)
	v.SetDefault("master_ip", "")

	if configFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		Database: Database{
			Driver:          strings.ToLower(v.GetString("database.driver")),
			DSN:             v.GetString("database.dsn"),
			Name:            v.GetString("database.name"),
			MigrationsTable: v.GetString("database.migrations_table"),
			ScriptsDir:      v.GetString("database.scripts_dir"),
		},
		Log: Log{
			Level:  v.GetString("log.level"),
			Format: strings.ToLower(v.GetString("log.format")),
		},
		MasterIP: v.GetString("master_ip"),
		File:     v.ConfigFileUsed(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMySQL:
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalidConfig, c.Database.Driver)
	}
	if c.Database.MigrationsTable == "" {
		return fmt.Errorf("%w: database.migrations_table is empty", ErrInvalidConfig)
	}
	switch c.Log.Format {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

func findConfigFile() string {
	candidates := []string{"fuelmig.yaml"}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "fuelmig", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
