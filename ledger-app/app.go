package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/compose-network/harberger/ledger-app/config"
	"github.com/compose-network/harberger/metrics"
	apisrv "github.com/compose-network/harberger/server/api"
	apimw "github.com/compose-network/harberger/server/api/middleware"
	"github.com/compose-network/harberger/x/asset"
	"github.com/compose-network/harberger/x/auth"
	"github.com/compose-network/harberger/x/journal"
	"github.com/compose-network/harberger/x/ledger"
	ledgerhttp "github.com/compose-network/harberger/x/ledger/http"
	"github.com/compose-network/harberger/x/sweeper"
)

// App wires the ledger, its asset router, event journal, sweeper and HTTP API.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	bank    *asset.Bank
	ledger  *ledger.Ledger
	journal journal.Manager
	sweeper *sweeper.Sweeper

	apiServer *apisrv.Server

	stateMu   sync.Mutex
	stateSeq  uint64
	dirty     chan struct{}
	startedAt time.Time
	ready     atomic.Bool

	shutdownFns []func() error
	cancel      context.CancelFunc
}

// NewApp creates a new application instance
func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg:         cfg,
		log:         log.With().Str("component", "app").Logger(),
		shutdownFns: make([]func() error, 0),
		dirty:       make(chan struct{}, 1),
	}

	if err := app.initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}

	return app, nil
}

// initialize sets up the bank, journal, ledger, sweeper and API server.
func (a *App) initialize(_ context.Context) error {
	var bankMetrics *asset.Metrics
	var ledgerMetrics *ledger.Metrics
	var sweeperMetrics *sweeper.Metrics
	if a.cfg.Metrics.Enabled {
		bankMetrics = asset.NewMetrics()
		ledgerMetrics = ledger.NewMetrics()
		sweeperMetrics = sweeper.NewMetrics()
	}

	a.bank = asset.NewBank(a.log, bankMetrics)
	if err := a.seedBank(); err != nil {
		return err
	}

	if err := a.openJournal(); err != nil {
		return err
	}

	if err := a.buildLedger(ledgerMetrics); err != nil {
		return err
	}

	if a.cfg.Sweeper.Enabled {
		sw, err := sweeper.New(sweeper.Config{
			Period:      a.cfg.Sweeper.Period,
			GenesisTime: a.cfg.Sweeper.GenesisTime,
			Logger:      a.log,
			Metrics:     sweeperMetrics,
		}, a.ledger)
		if err != nil {
			return fmt.Errorf("failed to create sweeper: %w", err)
		}
		a.sweeper = sw
	}

	a.buildAPI()
	return nil
}

func (a *App) seedBank() error {
	tokens, err := a.cfg.Tokens()
	if err != nil {
		return err
	}
	for _, t := range tokens {
		if err := a.bank.RegisterToken(t); err != nil {
			return fmt.Errorf("failed to register token %s: %w", t, err)
		}
	}

	for _, g := range a.cfg.Bank.Genesis {
		c, err := asset.ParseCurrency(g.Currency)
		if err != nil {
			return err
		}
		amount, err := uint256.FromDecimal(g.Amount)
		if err != nil {
			return fmt.Errorf("invalid genesis amount %q: %w", g.Amount, err)
		}
		if err := a.bank.Mint(c, common.HexToAddress(g.Holder), amount); err != nil {
			return fmt.Errorf("failed to mint genesis balance: %w", err)
		}
	}

	a.log.Info().
		Int("tokens", len(tokens)).
		Int("genesis_balances", len(a.cfg.Bank.Genesis)).
		Msg("Asset bank seeded")
	return nil
}

func (a *App) openJournal() error {
	if a.cfg.Journal.Path == "" {
		a.journal = journal.NewMemoryManager()
		a.log.Warn().Msg("No journal path configured, events are kept in memory only")
		return nil
	}

	j, err := journal.OpenFile(a.cfg.Journal.Path, a.log)
	if err != nil {
		return fmt.Errorf("failed to open event journal: %w", err)
	}
	a.journal = j
	a.shutdownFns = append(a.shutdownFns, j.Close)
	return nil
}

func (a *App) ledgerConfig() (ledger.Config, error) {
	lc := ledger.DefaultConfig(common.HexToAddress(a.cfg.Ledger.Authority))
	if a.cfg.Ledger.Custody != "" {
		lc.Custody = common.HexToAddress(a.cfg.Ledger.Custody)
	}
	lc.TaxRateBps = a.cfg.Ledger.TaxRateBps
	lc.CycleDuration = a.cfg.Ledger.CycleDuration
	lc.MinIncreaseBps = a.cfg.Ledger.MinIncreaseBps
	lc.StrictCollect = a.cfg.Ledger.StrictCollect
	lc.Logger = a.log

	allowed, err := a.cfg.AllowedCurrencies()
	if err != nil {
		return lc, err
	}
	lc.AllowedCurrencies = allowed

	sinks := ledger.MultiSink{a.journal}
	if a.cfg.Ledger.StateFile != "" {
		sinks = append(sinks, ledger.SinkFunc(a.checkpoint))
	}
	lc.Sink = sinks
	return lc, nil
}

// buildLedger restores the ledger from the state file when one exists.
func (a *App) buildLedger(m *ledger.Metrics) error {
	lc, err := a.ledgerConfig()
	if err != nil {
		return err
	}
	lc.Metrics = m

	path := a.cfg.Ledger.StateFile
	if path == "" {
		l, err := ledger.New(lc, a.bank)
		if err != nil {
			return fmt.Errorf("failed to create ledger: %w", err)
		}
		a.ledger = l
		a.log.Warn().Msg("No state file configured, ledger state is not persisted")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	st, err := ledger.LoadStateFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		l, err := ledger.New(lc, a.bank)
		if err != nil {
			return fmt.Errorf("failed to create ledger: %w", err)
		}
		a.ledger = l
		a.log.Info().Str("state_file", path).Msg("Starting with an empty ledger")
	case err != nil:
		return err
	default:
		// The journal may be ahead of the last checkpoint after a crash.
		if last := a.journal.LastSeq(); last > st.EventSeq {
			a.log.Warn().
				Uint64("state_seq", st.EventSeq).
				Uint64("journal_seq", last).
				Msg("Journal ahead of state file, continuing sequence from journal")
			st.EventSeq = last
		}
		if err := a.fundCustody(lc.Custody, st); err != nil {
			return err
		}
		l, err := ledger.Restore(lc, a.bank, st)
		if err != nil {
			return fmt.Errorf("failed to restore ledger: %w", err)
		}
		a.ledger = l
		a.stateSeq = st.EventSeq
		a.log.Info().
			Str("state_file", path).
			Int("slots", len(st.Slots)).
			Uint64("next_id", st.NextID).
			Msg("Ledger restored")
	}

	a.shutdownFns = append(a.shutdownFns, a.saveState)
	return nil
}

// fundCustody re-mints escrowed deposits; the in-process bank starts empty.
func (a *App) fundCustody(custody common.Address, st *ledger.State) error {
	for _, s := range st.Slots {
		c, err := asset.ParseCurrency(s.Currency)
		if err != nil {
			return fmt.Errorf("slot %d: %w", s.ID, err)
		}
		deposit, err := uint256.FromDecimal(s.Deposit)
		if err != nil {
			return fmt.Errorf("slot %d deposit: %w", s.ID, err)
		}
		if deposit.IsZero() {
			continue
		}
		if !c.IsNative() {
			if err := a.bank.RegisterToken(c); err != nil {
				return fmt.Errorf("slot %d: %w", s.ID, err)
			}
		}
		if err := a.bank.Mint(c, custody, deposit); err != nil {
			return fmt.Errorf("slot %d: %w", s.ID, err)
		}
	}
	return nil
}

// checkpoint marks the state file stale; checkpointLoop does the write
// since sinks may not read the ledger.
func (a *App) checkpoint(_ context.Context, events []ledger.Event) error {
	if len(events) == 0 {
		return nil
	}
	select {
	case a.dirty <- struct{}{}:
	default:
	}
	return nil
}

func (a *App) checkpointLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.dirty:
			if err := a.saveState(); err != nil {
				a.log.Error().Err(err).Msg("Failed to checkpoint ledger state")
			}
		}
	}
}

func (a *App) saveState() error {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	st := a.ledger.Snapshot()
	if st.EventSeq < a.stateSeq {
		return nil
	}
	if err := ledger.SaveStateFile(a.cfg.Ledger.StateFile, st); err != nil {
		return err
	}
	a.stateSeq = st.EventSeq
	return nil
}

func (a *App) buildAPI() {
	apiCfg := apisrv.Config{
		ListenAddr:        a.cfg.API.ListenAddr,
		ReadHeaderTimeout: a.cfg.API.ReadHeaderTimeout,
		ReadTimeout:       a.cfg.API.ReadTimeout,
		WriteTimeout:      a.cfg.API.WriteTimeout,
		IdleTimeout:       a.cfg.API.IdleTimeout,
		ShutdownTimeout:   a.cfg.API.ShutdownTimeout,
		MaxHeaderBytes:    a.cfg.API.MaxHeaderBytes,
		MaxBodyBytes:      a.cfg.API.MaxBodyBytes,
	}
	s := apisrv.NewServer(apiCfg, a.log)
	if a.cfg.API.EnableCORS {
		s.EnableCORS()
	}
	s.Use(apimw.RequestID())
	s.Use(apimw.Logger(a.log, "/health", "/ready", a.cfg.Metrics.Path))
	s.Use(apimw.Recover(a.log, apisrv.WriteMiddlewareError))
	s.Use(apimw.Caller(a.cfg.Auth, auth.NewKeyVerifier(), apiCfg.MaxBodyBytes, apisrv.WriteMiddlewareError))

	if a.cfg.Metrics.Enabled {
		s.Router.Use(apimw.Metrics(apimw.NewHTTPMetrics()))
	}

	// Health/readiness/stats
	s.Router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	s.Router.HandleFunc("/ready", a.handleReady).Methods(http.MethodGet)
	s.Router.HandleFunc("/stats", a.handleStats).Methods(http.MethodGet)

	if a.cfg.Metrics.Enabled {
		path := a.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		s.Router.Handle(path, promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}

	ledgerhttp.NewHandler(a.ledger, a.journal, a.bank, a.log).RegisterMux(s.Router)

	a.apiServer = s
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.startedAt = time.Now()

	if a.sweeper != nil {
		if err := a.sweeper.Start(runCtx); err != nil {
			cancel()
			return fmt.Errorf("failed to start sweeper: %w", err)
		}
	}

	go a.metricsReporter(runCtx)
	if a.cfg.Ledger.StateFile != "" {
		go a.checkpointLoop(runCtx)
	}

	go func() {
		if err := a.apiServer.Start(runCtx); err != nil {
			a.log.Error().Err(err).Msg("API server error")
			cancel()
		}
	}()

	a.ready.Store(true)
	return a.runWithGracefulShutdown(runCtx)
}

// runWithGracefulShutdown handles shutdown signals.
func (a *App) runWithGracefulShutdown(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a.log.Info().Msg("Harberger ledger started successfully")

	select {
	case <-ctx.Done():
		a.log.Info().Msg("Context canceled, initiating shutdown")
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	a.ready.Store(false)
	if a.cancel != nil {
		a.cancel()
	}

	return a.shutdown()
}

// shutdown stops the sweeper, then persists state and closes the journal.
func (a *App) shutdown() error {
	a.log.Info().Msg("Initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.sweeper != nil {
		if err := a.sweeper.Stop(shutdownCtx); err != nil {
			a.log.Error().Err(err).Msg("Sweeper shutdown error")
		}
	}

	var firstErr error
	for _, fn := range a.shutdownFns {
		if err := fn(); err != nil {
			a.log.Error().Err(err).Msg("Shutdown function error")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	a.log.Info().Msg("Graceful shutdown complete")
	return firstErr
}

// handleHealth responds to health check requests.
func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	apisrv.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *App) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !a.ready.Load() {
		apisrv.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	apisrv.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *App) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(a.GetStats())
}

// GetStats returns application statistics.
func (a *App) GetStats() map[string]interface{} {
	p := a.ledger.Params()
	stats := map[string]interface{}{
		"authority":          p.Authority.Hex(),
		"next_id":            uint64(p.NextID),
		"held_slots":         len(a.ledger.Slots()),
		"allowed_currencies": len(p.AllowedCurrencies),
		"last_event_seq":     a.journal.LastSeq(),
		"uptime_seconds":     time.Since(a.startedAt).Seconds(),
		"app_version":        Version,
		"app_build_time":     BuildTime,
		"app_git_commit":     GitCommit,
	}
	return stats
}

// metricsReporter periodically reports application statistics.
func (a *App) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := a.GetStats()

			a.log.Info().
				Str("authority", stats["authority"].(string)).
				Int("held_slots", stats["held_slots"].(int)).
				Uint64("next_id", stats["next_id"].(uint64)).
				Uint64("last_event_seq", stats["last_event_seq"].(uint64)).
				Float64("uptime_seconds", stats["uptime_seconds"].(float64)).
				Msg("Ledger statistics")
		}
	}
}
