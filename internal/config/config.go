// Package config defines engine configuration and its loading.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DBDriver is sqlite or postgres; DBDSN is passed to it unchanged.
	DBDriver string `koanf:"db_driver"`
	DBDSN    string `koanf:"db_dsn"`

	// DBMaxOpenConns caps the store's connection pool; 0 keeps the driver default.
	DBMaxOpenConns int `koanf:"db_max_open_conns"`

	// ScoreYears are the window cutoff years, newest first.
	ScoreYears []int `koanf:"score_years"`

	// ChunkSize bounds entities read per query; BatchSize bounds entities
	// written per transaction.
	ChunkSize int `koanf:"chunk_size"`
	BatchSize int `koanf:"batch_size"`

	// Schemas lists subject schemas; each has a root node with UID
	// "<SCHEMA>-ROOT".
	Schemas []string `koanf:"schemas"`

	// TreeExcludeUIDPattern prunes matching nodes from tree exports. Empty
	// disables it.
	TreeExcludeUIDPattern string `koanf:"tree_exclude_uid_pattern"`

	// CandidateWeights is the default composite weight set, "kind:w,...".
	CandidateWeights string `koanf:"candidate_weights"`

	// CountUndatedInAll counts usage without a usable date toward score_all.
	// Off by default: undated usage contributes 0 to every window.
	CountUndatedInAll bool `koanf:"count_undated_in_all"`

	// MaxParallel caps concurrent populations and tree exports.
	MaxParallel int `koanf:"max_parallel"`

	// MaxTopicLimit caps topic listings.
	MaxTopicLimit int `koanf:"max_topic_limit"`

	// Now freezes the run clock (RFC 3339 or YYYY-MM-DD). Empty means wall clock.
	Now string `koanf:"now"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		DBDriver:              DriverSQLite,
		DBDSN:                 "shelfrank.db",
		ScoreYears:            defaultYears(),
		ChunkSize:             10_000,
		BatchSize:             1_000,
		Schemas:               defaultSchemas(),
		TreeExcludeUIDPattern: `^\d`,
		CandidateWeights:      "author:1,publisher:1,language:1,subject_category:1",
		CountUndatedInAll:     false,
		MaxParallel:           4,
		MaxTopicLimit:         1000,
	}
}

func defaultYears() []int      { return []int{2020, 2015, 2010, 2005, 2000} }
func defaultSchemas() []string { return []string{"psh", "konspekt", "thema"} }

// SchemaRoots returns the root UID of every configured schema.
func (c *Config) SchemaRoots() []string {
	roots := make([]string, 0, len(c.Schemas))
	for _, s := range c.Schemas {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		roots = append(roots, RootUID(s))
	}
	return roots
}

// RootUID names the root node of a schema.
func RootUID(schema string) string {
	return strings.ToUpper(schema) + "-ROOT"
}

// FixedNow parses Now. The boolean is false when no override is set.
func (c *Config) FixedNow() (time.Time, bool, error) {
	if c.Now == "" {
		return time.Time{}, false, nil
	}
	if t, err := time.Parse(time.RFC3339, c.Now); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse("2006-01-02", c.Now)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: now %q", ErrInvalidConfig, c.Now)
	}
	return t, true, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DBDriver != DriverSQLite && c.DBDriver != DriverPostgres:
		return fmt.Errorf("%w: db_driver %q", ErrInvalidConfig, c.DBDriver)
	case c.DBMaxOpenConns < 0:
		return fmt.Errorf("%w: db_max_open_conns must not be negative", ErrInvalidConfig)
	case c.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk_size must be positive", ErrInvalidConfig)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch_size must be positive", ErrInvalidConfig)
	case c.MaxParallel <= 0:
		return fmt.Errorf("%w: max_parallel must be positive", ErrInvalidConfig)
	case len(c.ScoreYears) == 0:
		return fmt.Errorf("%w: score_years must not be empty", ErrInvalidConfig)
	}
	if _, err := regexp.Compile(c.TreeExcludeUIDPattern); err != nil {
		return fmt.Errorf("%w: tree_exclude_uid_pattern: %v", ErrInvalidConfig, err)
	}
	if _, _, err := c.FixedNow(); err != nil {
		return err
	}
	return nil
}
