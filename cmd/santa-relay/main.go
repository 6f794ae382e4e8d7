package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vango-go/santa-relay/internal/dotenv"
	"github.com/vango-go/santa-relay/internal/paramstore"
	"github.com/vango-go/santa-relay/pkg/core"
	"github.com/vango-go/santa-relay/pkg/core/providers/anthropic"
	"github.com/vango-go/santa-relay/pkg/core/providers/gemini"
	"github.com/vango-go/santa-relay/pkg/core/providers/openai"
	"github.com/vango-go/santa-relay/pkg/relay/config"
	"github.com/vango-go/santa-relay/pkg/relay/metrics"
	"github.com/vango-go/santa-relay/pkg/relay/notify"
	"github.com/vango-go/santa-relay/pkg/relay/persona"
	"github.com/vango-go/santa-relay/pkg/relay/retell"
	"github.com/vango-go/santa-relay/pkg/relay/server"
)

type relayDeps struct {
	loadConfig   func() (config.Config, error)
	newSecrets   func(context.Context) (paramstore.Getter, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultRelayDeps() relayDeps {
	return relayDeps{
		loadConfig: config.LoadFromEnv,
		newSecrets: func(ctx context.Context) (paramstore.Getter, error) {
			return paramstore.NewFromEnvironment(ctx)
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// loadSecrets fills credentials missing from the environment out of SSM.
func loadSecrets(ctx context.Context, cfg *config.Config, logger *slog.Logger, newSecrets func(context.Context) (paramstore.Getter, error)) error {
	if cfg.SSMPrefix == "" {
		return nil
	}
	names := cfg.SecretNames()
	if len(names) == 0 {
		return nil
	}
	store, err := newSecrets(ctx)
	if err != nil {
		return err
	}
	values, err := paramstore.Resolve(ctx, store, cfg.SSMPrefix, names)
	if err != nil {
		return err
	}
	cfg.ApplySecrets(values)
	logger.Info("loaded secrets from parameter store", "prefix", cfg.SSMPrefix, "found", len(values), "wanted", len(names))
	return nil
}

func loadPersona(cfg config.Config) (*persona.Persona, error) {
	var (
		p   *persona.Persona
		err error
	)
	if cfg.PersonaFile != "" {
		p, err = persona.ParseFile(cfg.PersonaFile)
	} else {
		p, err = persona.Load(cfg.Persona)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Model != "" {
		p = p.WithModel(cfg.Model)
	}
	return p, nil
}

// buildEngine registers a provider for every API key that is set.
func buildEngine(ctx context.Context, cfg config.Config, httpClient *http.Client) (*core.Engine, error) {
	var providers []core.Provider
	if cfg.OpenAIAPIKey != "" {
		opts := []openai.Option{openai.WithHTTPClient(httpClient)}
		if cfg.OpenAIOrganization != "" {
			opts = append(opts, openai.WithOrganization(cfg.OpenAIOrganization))
		}
		providers = append(providers, openai.New(cfg.OpenAIAPIKey, opts...))
	}
	if cfg.AnthropicAPIKey != "" {
		providers = append(providers, anthropic.New(cfg.AnthropicAPIKey, anthropic.WithHTTPClient(httpClient)))
	}
	if cfg.GeminiAPIKey != "" {
		g, err := gemini.New(ctx, cfg.GeminiAPIKey, gemini.WithHTTPClient(httpClient))
		if err != nil {
			return nil, fmt.Errorf("gemini provider: %w", err)
		}
		providers = append(providers, g)
	}
	return core.NewEngine(providers...), nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func buildServer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*server.Server, error) {
	p, err := loadPersona(cfg)
	if err != nil {
		return nil, fmt.Errorf("load persona: %w", err)
	}

	httpClient := server.NewUpstreamHTTPClient(cfg)
	engine, err := buildEngine(ctx, cfg, httpClient)
	if err != nil {
		return nil, err
	}
	if !engine.HasModel(p.Model) {
		logger.Warn("no provider configured for persona model", "persona", p.Name, "model", p.Model)
	}

	deps := server.Dependencies{
		Persona:  p,
		Streamer: engine,
		Calls:    retell.NewClient(cfg.RetellAPIKey, cfg.RetellBaseURL, httpClient),
		Metrics:  metrics.New("santa_relay"),
	}
	if cfg.NotifyURL != "" {
		deps.Notifier = &notify.Dispatcher{
			Sender: &notify.Notifier{
				URL:     cfg.NotifyURL,
				Timeout: cfg.NotifyTimeout,
				HTTP:    httpClient,
				Logger:  logger,
			},
			Logger:  logger,
			Metrics: deps.Metrics,
		}
	}
	return server.New(cfg, logger, deps), nil
}

func runRelay(ctx context.Context, stderr io.Writer, deps relayDeps) error {
	if deps.loadConfig == nil || deps.newSecrets == nil {
		return errors.New("missing config dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(stderr, cfg)

	if err := loadSecrets(ctx, &cfg, logger, deps.newSecrets); err != nil {
		return fmt.Errorf("load secrets: %w", err)
	}

	srv, err := buildServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	httpSrv := buildHTTPServer(cfg, srv.Handler())

	logger.Info("starting relay", "addr", cfg.Addr, "persona", cfg.Persona, "notify_on", cfg.NotifyOn)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("context canceled; shutting down")
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	// Live calls hold hijacked connections that http.Server.Shutdown does
	// not track, so drain them while the listener still answers readyz.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer drainCancel()
	if canceled := srv.Drain(drainCtx); canceled > 0 {
		logger.Warn("live calls canceled at shutdown", "count", canceled)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("relay stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps relayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	if _, err := dotenv.Load(".env", true); err != nil {
		fmt.Fprintf(stderr, "santa-relay: %v\n", err)
		return 1
	}
	if err := runRelay(ctx, stderr, deps); err != nil {
		fmt.Fprintf(stderr, "santa-relay: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultRelayDeps()))
}
