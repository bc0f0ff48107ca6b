// Package config loads settings for the docbind command.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Output formats understood by the dump and query commands.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Defaults used when the matching environment variable is unset.
const (
	DefaultDB   = "docbind.db"
	DefaultAddr = "localhost:8080"
)

// CLI captures command level configuration.
type CLI struct {
	DB       string
	Format   string
	LogLevel slog.Level
	// Addr is the listen address of the serve command.
	Addr string
}

// FromEnv builds a CLI config from environment variables so main stays lean.
func FromEnv() (CLI, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (CLI, error) {
	c := CLI{DB: DefaultDB, Format: FormatYAML, LogLevel: slog.LevelWarn, Addr: DefaultAddr}
	if v, ok := lookup("DOCBIND_DB"); ok && v != "" {
		c.DB = v
	}
	if v, ok := lookup("DOCBIND_ADDR"); ok && v != "" {
		c.Addr = v
	}
	if v, ok := lookup("DOCBIND_FORMAT"); ok && v != "" {
		c.Format = strings.ToLower(v)
	}
	if v, ok := lookup("DOCBIND_LOG_LEVEL"); ok && v != "" {
		if err := c.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return CLI{}, fmt.Errorf("DOCBIND_LOG_LEVEL: %w", err)
		}
	}
	return c, c.Validate()
}

// Bind registers the flags shared by every command on fs. They override the
// loaded values.
func (c *CLI) Bind(fs *flag.FlagSet) {
	fs.StringVar(&c.DB, "db", c.DB, "bbolt database file (env DOCBIND_DB)")
	fs.StringVar(&c.Format, "format", c.Format, "output format, yaml or json (env DOCBIND_FORMAT)")
	fs.TextVar(&c.LogLevel, "log-level", c.LogLevel, "log level (env DOCBIND_LOG_LEVEL)")
}

// Validate reports settings no command can run with.
func (c CLI) Validate() error {
	if c.DB == "" {
		return fmt.Errorf("config: empty database path")
	}
	switch c.Format {
	case FormatYAML, FormatJSON:
		return nil
	}
	return fmt.Errorf("config: unknown format %q", c.Format)
}

// Logger returns a text logger writing to stderr at the configured level.
func (c CLI) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.LogLevel}))
}
