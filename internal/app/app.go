package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/getsentry/sentry-go"

	"github.com/atomicstack/multiverse/internal/controller"
	"github.com/atomicstack/multiverse/internal/logging"
	"github.com/atomicstack/multiverse/internal/matrix"
	"github.com/atomicstack/multiverse/internal/metrics"
	"github.com/atomicstack/multiverse/internal/session"
	"github.com/atomicstack/multiverse/internal/store"
	"github.com/atomicstack/multiverse/internal/tracing"
	"github.com/atomicstack/multiverse/internal/ui"
)

// Version is reported to the tracing and crash reporting backends.
var Version = "dev"

const shutdownTimeout = 5 * time.Second

// Config describes user-provided application options.
type Config struct {
	// Server is a homeserver URL or a server name resolved through
	// .well-known.
	Server      string
	SessionPath string
	// Proxy routes every request through an HTTP proxy. TLS certificates are
	// not verified while it is set.
	Proxy            string
	SlidingSyncProxy string
	MetricsAddr      string
	SentryDSN        string
	OTLPURL          string
	Width            int
	Height           int
}

// Run bootstraps the Matrix client and executes the Bubble Tea program.
func Run(cfg Config) error {
	return run(cfg, os.Stdout)
}

func run(cfg Config, out io.Writer) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Configure(cfg.OTLPURL, Version)
	if err != nil {
		return fmt.Errorf("configure tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logging.Error(fmt.Errorf("flushing traces: %w", err))
		}
	}()
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, Release: Version}); err != nil {
			return fmt.Errorf("configure sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	httpClient, err := NewHTTPClient(cfg.Proxy)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.SessionPath, 0o700); err != nil {
		return fmt.Errorf("create session path: %w", err)
	}
	homeserver, err := session.ResolveHomeserver(cfg.Server)
	if err != nil {
		return err
	}
	sess, err := session.LoginOrRestore(cfg.SessionPath, homeserver, session.PasswordLogin(httpClient), session.NewTerminal(), out)
	if err != nil {
		return fmt.Errorf("log in: %w", err)
	}

	cache, err := store.Open(filepath.Join(cfg.SessionPath, store.FileName))
	if err != nil {
		return fmt.Errorf("open event cache: %w", err)
	}
	defer cache.Close()

	client, err := matrix.New(ctx, matrix.Options{
		Homeserver:     sess.Homeserver,
		SlidingSyncURL: cfg.SlidingSyncProxy,
		UserID:         sess.UserID,
		AccessToken:    sess.AccessToken,
		HTTPClient:     httpClient,
		Cache:          cache,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	ctrl := controller.New(ctx, client, controller.Options{})
	go func() {
		snapshot := func() interface{} { return ctrl.Infos().Snapshot() }
		if err := metrics.Serve(ctx, cfg.MetricsAddr, snapshot); err != nil {
			logging.Error(fmt.Errorf("metrics server: %w", err))
		}
	}()
	ctrl.StartSync(ctx)

	program := tea.NewProgram(ui.NewModel(ctx, ctrl, cfg.Width, cfg.Height), tea.WithAltScreen())
	_, err = program.Run()

	fmt.Fprintln(out, "Stopping the sync service...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	ctrl.Shutdown(shutdownCtx)
	fmt.Fprintln(out, "okthxbye!")

	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// NewHTTPClient builds the client every Matrix request goes through. A
// non-empty proxy URL routes requests through it.
func NewHTTPClient(proxy string) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy URL: %w", err)
		}
		if proxyURL.Scheme == "" || proxyURL.Host == "" {
			return nil, fmt.Errorf("proxy URL %q needs a scheme and host", proxy)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &http.Client{Transport: tracing.Transport(transport)}, nil
}
