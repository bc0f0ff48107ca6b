package config

import (
	"flag"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(kv map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := kv[k]
		return v, ok
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	c, err := fromLookup(env(nil))
	require.NoError(t, err)
	assert.Equal(t, CLI{DB: DefaultDB, Format: FormatYAML, LogLevel: slog.LevelWarn, Addr: DefaultAddr}, c)
}

func TestFromEnv_Overrides(t *testing.T) {
	c, err := fromLookup(env(map[string]string{
		"DOCBIND_DB":        "/tmp/x.db",
		"DOCBIND_FORMAT":    "JSON",
		"DOCBIND_LOG_LEVEL": "debug",
		"DOCBIND_ADDR":      ":9000",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", c.DB)
	assert.Equal(t, FormatJSON, c.Format)
	assert.Equal(t, slog.LevelDebug, c.LogLevel)
	assert.Equal(t, ":9000", c.Addr)
}

func TestFromEnv_Invalid(t *testing.T) {
	_, err := fromLookup(env(map[string]string{"DOCBIND_LOG_LEVEL": "loud"}))
	assert.ErrorContains(t, err, "DOCBIND_LOG_LEVEL")

	_, err = fromLookup(env(map[string]string{"DOCBIND_FORMAT": "xml"}))
	assert.ErrorContains(t, err, `unknown format "xml"`)
}

func TestBind_FlagsWin(t *testing.T) {
	c, err := fromLookup(env(map[string]string{"DOCBIND_DB": "env.db"}))
	require.NoError(t, err)

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.Bind(fs)
	require.NoError(t, fs.Parse([]string{"-db", "flag.db", "-format", "json", "-log-level", "error"}))
	assert.Equal(t, "flag.db", c.DB)
	assert.Equal(t, FormatJSON, c.Format)
	assert.Equal(t, slog.LevelError, c.LogLevel)
	assert.NoError(t, c.Validate())
}

func TestBind_KeepsEnvWhenUnset(t *testing.T) {
	c, err := fromLookup(env(map[string]string{"DOCBIND_DB": "env.db"}))
	require.NoError(t, err)

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.Bind(fs)
	require.NoError(t, fs.Parse(nil))
	assert.Equal(t, "env.db", c.DB)
	assert.Empty(t, fs.Args())
}

func TestValidate_EmptyDB(t *testing.T) {
	assert.Error(t, CLI{Format: FormatYAML}.Validate())
}
