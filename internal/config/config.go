package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/atomicstack/multiverse/internal/app"
)

// Config captures runtime configuration for the application.
type Config struct {
	App     app.Config
	Logging Logging
	// File is the TOML file the configuration was read from, if any.
	File  string
	Flags map[string]string
	Args  []string
}

type Logging struct {
	FilePath string
	Trace    bool
}

const defaultSessionPath = "/tmp/"

const (
	envProxy            = "PROXY"
	envSlidingSyncProxy = "MULTIVERSE_SLIDING_SYNC_PROXY"
	envWidth            = "MULTIVERSE_WIDTH"
	envHeight           = "MULTIVERSE_HEIGHT"
	envTrace            = "MULTIVERSE_TRACE"
	envLogFile          = "MULTIVERSE_LOG_FILE"
	envMetricsAddr      = "MULTIVERSE_METRICS_ADDR"
	envSentryDSN        = "MULTIVERSE_SENTRY_DSN"
	envOTLPURL          = "MULTIVERSE_OTLP_URL"
	envConfigFile       = "MULTIVERSE_CONFIG"
)

// fileConfig is the TOML layout. Values in it sit below the environment and
// the command line.
type fileConfig struct {
	Server           string `toml:"server"`
	SessionPath      string `toml:"session_path"`
	Proxy            string `toml:"proxy"`
	SlidingSyncProxy string `toml:"sliding_sync_proxy"`
	LogFile          string `toml:"log_file"`
	Trace            *bool  `toml:"trace"`
	MetricsAddr      string `toml:"metrics_addr"`
	SentryDSN        string `toml:"sentry_dsn"`
	OTLPURL          string `toml:"otlp_url"`
	Width            *int   `toml:"width"`
	Height           *int   `toml:"height"`
}

// Load parses configuration from CLI arguments and environment variables.
func Load() (Config, error) {
	return LoadArgs(os.Args[1:], os.Environ())
}

// LoadArgs allows tests to supply specific args/environment.
func LoadArgs(args []string, environ []string) (Config, error) {
	env := parseEnv(environ)

	fs := flag.NewFlagSet("multiverse", flag.ContinueOnError)
	fs.SetOutput(new(strings.Builder))

	configFile := fs.String("config", "", "path to a TOML configuration file")
	proxy := fs.String("proxy", "", "HTTP proxy for every request (env PROXY)")
	slidingSync := fs.String("sliding-sync-proxy", "", "sliding sync proxy URL (defaults to the homeserver)")
	width := fs.Int("width", 0, "desired viewport width in cells (0 uses terminal width)")
	height := fs.Int("height", 0, "desired viewport height in rows (0 uses terminal height)")
	trace := fs.Bool("trace", false, "enable verbose JSON trace logging")
	logFile := fs.String("log-file", "", "path to the log file")
	metricsAddr := fs.String("metrics-addr", "", "listen address for /metrics and /debug/rooms")
	sentryDSN := fs.String("sentry-dsn", "", "report crashes to this Sentry DSN")
	otlpURL := fs.String("otlp-url", "", "export traces to this OTLP/HTTP collector")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	l := layers{set: set, env: env}
	path := l.str("config", *configFile, envConfigFile, "", "")
	var file fileConfig
	if path != "" {
		if _, err := toml.DecodeFile(path, &file); err != nil {
			return Config{}, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	positional := fs.Args()
	if len(positional) > 2 {
		return Config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(positional[2:], " "))
	}
	server, sessionPath := file.Server, file.SessionPath
	if len(positional) > 0 {
		server = positional[0]
	}
	if len(positional) > 1 {
		sessionPath = positional[1]
	}
	if sessionPath == "" {
		sessionPath = defaultSessionPath
	}

	w, err := l.integer("width", *width, envWidth, file.Width)
	if err != nil {
		return Config{}, err
	}
	h, err := l.integer("height", *height, envHeight, file.Height)
	if err != nil {
		return Config{}, err
	}
	if w < 0 {
		return Config{}, fmt.Errorf("width must be >= 0 (got %d)", w)
	}
	if h < 0 {
		return Config{}, fmt.Errorf("height must be >= 0 (got %d)", h)
	}

	cfg := Config{
		App: app.Config{
			Server:           server,
			SessionPath:      sessionPath,
			Proxy:            l.str("proxy", *proxy, envProxy, file.Proxy, ""),
			SlidingSyncProxy: l.str("sliding-sync-proxy", *slidingSync, envSlidingSyncProxy, file.SlidingSyncProxy, ""),
			MetricsAddr:      l.str("metrics-addr", *metricsAddr, envMetricsAddr, file.MetricsAddr, ""),
			SentryDSN:        l.str("sentry-dsn", *sentryDSN, envSentryDSN, file.SentryDSN, ""),
			OTLPURL:          l.str("otlp-url", *otlpURL, envOTLPURL, file.OTLPURL, ""),
			Width:            w,
			Height:           h,
		},
		Logging: Logging{
			FilePath: l.str("log-file", *logFile, envLogFile, file.LogFile, ""),
			Trace:    l.boolean("trace", *trace, envTrace, file.Trace),
		},
		File: path,
		Args: append([]string(nil), args...),
	}
	cfg.Flags = map[string]string{
		"server":           cfg.App.Server,
		"sessionPath":      cfg.App.SessionPath,
		"proxy":            cfg.App.Proxy,
		"slidingSyncProxy": cfg.App.SlidingSyncProxy,
		"width":            strconv.Itoa(cfg.App.Width),
		"height":           strconv.Itoa(cfg.App.Height),
		"metricsAddr":      cfg.App.MetricsAddr,
		"trace":            strconv.FormatBool(cfg.Logging.Trace),
		"logFile":          cfg.Logging.FilePath,
		"config":           cfg.File,
	}
	return cfg, nil
}

// layers resolves one option from, in order of precedence, an explicitly
// set flag, the environment and the config file.
type layers struct {
	set map[string]bool
	env map[string]string
}

func (l layers) str(name, flagValue, envKey, fileValue, fallback string) string {
	if l.set[name] {
		return flagValue
	}
	if v, ok := l.env[envKey]; ok {
		return v
	}
	if fileValue != "" {
		return fileValue
	}
	return fallback
}

func (l layers) integer(name string, flagValue int, envKey string, fileValue *int) (int, error) {
	if l.set[name] {
		return flagValue, nil
	}
	if v, ok := l.env[envKey]; ok && strings.TrimSpace(v) != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, err)
		}
		return parsed, nil
	}
	if fileValue != nil {
		return *fileValue, nil
	}
	return 0, nil
}

func (l layers) boolean(name string, flagValue bool, envKey string, fileValue *bool) bool {
	if l.set[name] {
		return flagValue
	}
	if v, ok := l.env[envKey]; ok && strings.TrimSpace(v) != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	if fileValue != nil {
		return *fileValue
	}
	return false
}

func parseEnv(environ []string) map[string]string {
	values := make(map[string]string, len(environ))
	for _, entry := range environ {
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		values[parts[0]] = parts[1]
	}
	return values
}

// MustLoad returns configuration or exits.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}
	return cfg
}

// Validate ensures required minimum configuration is present.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.App.Server) == "" {
		return errors.New("missing server name: usage multiverse [flags] <server> [session_path]")
	}
	return nil
}
