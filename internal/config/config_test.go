package config

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return Parse(fs, args)
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ramdis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := parse(t, "get", "k")
	require.NoError(t, err)

	want := Default()
	want.Args = []string{"get", "k"}
	require.Equal(t, want, cfg)
	require.Equal(t, 5120, cfg.SegmentSize.Int())
	require.Equal(t, time.Millisecond, cfg.RetryBackoff.Duration())
}

func TestParse_Flags(t *testing.T) {
	cfg, err := parse(t,
		"-backend", "pebble",
		"-path", "/tmp/db",
		"-segment-size", "8KiB",
		"-max-key-size", "1024",
		"-retries", "0",
		"-retry-backoff", "5ms",
		"-log-level", "debug",
		"lrange", "k", "0", "-1",
	)
	require.NoError(t, err)
	require.Equal(t, BackendPebble, cfg.Backend)
	require.Equal(t, "/tmp/db", cfg.Path)
	require.EqualValues(t, 8192, cfg.SegmentSize)
	require.EqualValues(t, 1024, cfg.MaxKeySize)
	require.Zero(t, cfg.Retries)
	require.Equal(t, 5*time.Millisecond, cfg.RetryBackoff.Duration())
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, []string{"lrange", "k", "0", "-1"}, cfg.Args)
}

func TestParse_File(t *testing.T) {
	path := writeFile(t, `
backend: bolt
path: /var/lib/ramdis/ramdis.db
segment-size: 16KiB
retries: 7
retry-backoff: 2ms
`)

	cfg, err := parse(t, "-config", path)
	require.NoError(t, err)
	require.Equal(t, BackendBolt, cfg.Backend)
	require.Equal(t, "/var/lib/ramdis/ramdis.db", cfg.Path)
	require.EqualValues(t, 16<<10, cfg.SegmentSize)
	require.Equal(t, 7, cfg.Retries)
	require.Equal(t, 2*time.Millisecond, cfg.RetryBackoff.Duration())
	require.EqualValues(t, 32<<10, cfg.MaxKeySize, "default kept")

	// explicit flags win, even when set to the default value
	cfg, err = parse(t, "-config", path, "-retries", "3", "-segment-size", "5KiB")
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Retries)
	require.EqualValues(t, 5<<10, cfg.SegmentSize)
	require.Equal(t, BackendBolt, cfg.Backend)

	cfg, err = parse(t, "-config", writeFile(t, ""))
	require.NoError(t, err)
	require.Equal(t, BackendMemory, cfg.Backend)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown backend", []string{"-backend", "redis"}},
		{"bolt without path", []string{"-backend", "bolt"}},
		{"small segment", []string{"-segment-size", "100"}},
		{"huge segment", []string{"-segment-size", "1MiB"}},
		{"bad size", []string{"-segment-size", "lots"}},
		{"zero key size", []string{"-max-key-size", "0"}},
		{"negative retries", []string{"-retries", "-1"}},
		{"bad duration", []string{"-retry-backoff", "soon"}},
		{"log level", []string{"-log-level", "loud"}},
		{"missing file", []string{"-config", "/nonexistent/ramdis.yaml"}},
		{"unknown field", []string{"-config", "UNKNOWN"}},
		{"bad yaml size", []string{"-config", "BADSIZE"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := tt.args
			switch args[len(args)-1] {
			case "UNKNOWN":
				args = []string{"-config", writeFile(t, "backends: memory\n")}
			case "BADSIZE":
				args = []string{"-config", writeFile(t, "segment-size: big\n")}
			}
			_, err := parse(t, args...)
			require.Error(t, err)
		})
	}
}

func TestSizeBytes(t *testing.T) {
	var s SizeBytes
	require.NoError(t, s.Set("5KiB"))
	require.EqualValues(t, 5120, s)
	require.Equal(t, "5.0 KiB", s.String())
	require.NoError(t, s.Set(" 42 "))
	require.EqualValues(t, 42, s)
	require.NoError(t, s.Set(""))
	require.Zero(t, s)
}

func TestDuration(t *testing.T) {
	var d Duration
	require.NoError(t, d.Set("1.5"))
	require.Equal(t, 1500*time.Millisecond, d.Duration())
	require.NoError(t, d.Set("250us"))
	require.Equal(t, "250µs", d.String())
}

func TestConfig_Logger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	logger, err := cfg.Logger()
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(-1))
	require.True(t, logger.Core().Enabled(2))
}
