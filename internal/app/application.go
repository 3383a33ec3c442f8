package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raysh454/webaudit/internal/archive"
	"github.com/raysh454/webaudit/internal/logging"
	"github.com/raysh454/webaudit/internal/scheduler"
	"github.com/raysh454/webaudit/internal/store"
	"github.com/raysh454/webaudit/internal/webclient"
)

// Application is the global runtime state container for the serve command.
// It owns the core services shared across modules so they can be started
// and shut down together.
type Application struct {
	Config *Config
	Logger logging.Logger

	Client    webclient.WebClient
	Store     *store.Store
	Orch      *Orchestrator
	Scheduler *scheduler.Scheduler
}

// NewApplication builds every service from cfg. Scan history is skipped
// when cfg.DBPath is empty and the scheduler when no rescan is configured.
func NewApplication(cfg *Config, logger logging.Logger) (*Application, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	client, err := webclient.NewWebClient(cfg.WebClientCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating webclient: %w", err)
	}

	var st *store.Store
	if cfg.DBPath != "" {
		st, err = store.Open(cfg.DBPath, logger)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("opening scan history: %w", err)
		}
	}

	arch, err := archive.New(cfg.ArchiveCfg)
	if err != nil {
		logger.Warn("archive disabled", logging.Field{Key: "error", Value: err.Error()})
		arch = archive.NopArchiver{}
	}

	orch, err := NewOrchestrator(cfg, client, st, arch, logger)
	if err != nil {
		_ = client.Close()
		if st != nil {
			_ = st.Close()
		}
		return nil, err
	}

	a := &Application{
		Config: cfg,
		Logger: logger,
		Client: client,
		Store:  st,
		Orch:   orch,
	}

	if cfg.RescanCron != "" && cfg.RescanURL != "" {
		a.Scheduler = scheduler.New(logger)
		_, err := a.Scheduler.Add(cfg.RescanCron, cfg.RescanURL, func(ctx context.Context, url string) error {
			_, err := orch.StartScan(ctx, url)
			return err
		})
		if err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

// Start begins background work. The API server is started by the caller.
func (a *Application) Start() error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Info("application starting",
		logging.Field{Key: "plan", Value: a.Orch.Plan().Name},
		logging.Field{Key: "history", Value: a.Store != nil})
	if a.Scheduler != nil {
		a.Scheduler.Start()
	}
	return nil
}

// Shutdown stops the scheduler, cancels running scans and releases
// resources. It returns ctx.Err() if ctx ends before scans stop.
func (a *Application) Shutdown(ctx context.Context) error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Info("application shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		a.close()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-shutdownCtx.Done():
		return shutdownCtx.Err()
	}
}

func (a *Application) close() {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	a.Orch.Close()
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn("closing scan history", logging.Field{Key: "error", Value: err.Error()})
		}
	}
	if err := a.Client.Close(); err != nil {
		a.Logger.Warn("closing webclient", logging.Field{Key: "error", Value: err.Error()})
	}
}
