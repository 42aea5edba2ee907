package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GPTx-global/flightsurety-oracle/oracle/config"
	"github.com/GPTx-global/flightsurety-oracle/oracle/dispatcher"
	"github.com/GPTx-global/flightsurety-oracle/oracle/health"
	"github.com/GPTx-global/flightsurety-oracle/oracle/ledger"
	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
	"github.com/GPTx-global/flightsurety-oracle/oracle/monitor"
	"github.com/GPTx-global/flightsurety-oracle/oracle/registry"
	"github.com/GPTx-global/flightsurety-oracle/oracle/retry"
	"github.com/GPTx-global/flightsurety-oracle/oracle/server"
	"github.com/GPTx-global/flightsurety-oracle/oracle/subscribe"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
	"github.com/GPTx-global/flightsurety-oracle/oracle/verdict"
	"github.com/GPTx-global/flightsurety-oracle/oracle/wallet"
)

const (
	healthInterval  = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

type Daemon struct {
	cfg *config.Config

	pool    *wallet.Pool
	gw      ledger.Gateway
	closeGw func()
	source  verdict.Source

	registry   *registry.Registry
	monitor    *monitor.Monitor
	dispatcher *dispatcher.Dispatcher
	listener   *subscribe.Listener
	checker    *health.Checker
	server     *server.Server

	wg sync.WaitGroup
}

type Option func(*Daemon)

// WithGateway uses gw instead of dialing the configured endpoint.
func WithGateway(gw ledger.Gateway) Option {
	return func(d *Daemon) { d.gw = gw }
}

func WithVerdictSource(source verdict.Source) Option {
	return func(d *Daemon) { d.source = source }
}

// New creates a daemon from a validated config. Nothing touches the network
// until Start.
func New(cfg *config.Config, opts ...Option) (*Daemon, error) {
	d := &Daemon{cfg: cfg}
	for _, opt := range opts {
		opt(d)
	}

	pool, err := wallet.NewPool(cfg.Oracle.Mnemonic, cfg.Oracle.AccountCount)
	if err != nil {
		return nil, fmt.Errorf("failed to derive accounts: %w", err)
	}
	d.pool = pool

	if d.source == nil {
		d.source, err = newSource(cfg.Dispatch)
		if err != nil {
			return nil, err
		}
	}

	d.monitor, err = monitor.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create monitor: %w", err)
	}
	d.checker = health.NewChecker(healthInterval)

	return d, nil
}

func newSource(cfg config.DispatchConfig) (verdict.Source, error) {
	switch cfg.VerdictSource {
	case "http":
		return verdict.NewHTTP(cfg.VerdictURL, cfg.VerdictPath)
	default:
		seed := cfg.VerdictSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		log.Debugf("random verdicts with seed %d", seed)
		return verdict.NewRandom(seed), nil
	}
}

// Start connects to the ledger, registers the oracle pool and brings up the
// status server. Any error here is fatal.
func (d *Daemon) Start(ctx context.Context) error {
	if d.gw == nil {
		gw, err := ledger.Dial(ctx, d.cfg.Chain.Endpoint, d.cfg.ContractAddress(), d.pool,
			ledger.WithRegistrationGas(d.cfg.Gas.RegistrationLimit))
		if err != nil {
			return err
		}
		d.gw = gw
		d.closeGw = gw.Close
		log.Infof("connected to %s, chain id %s", d.cfg.Chain.Endpoint, gw.ChainID())
	}

	if head, ok := d.gw.(ledger.HeadReader); ok {
		d.checker.Add(health.Ledger(head))
	}

	accounts := d.pool.Addresses(d.cfg.Oracle.AccountOffset, d.cfg.Oracle.AccountCount-d.cfg.Oracle.AccountOffset)
	reg, err := registry.Bootstrap(ctx, d.gw, accounts, d.cfg.Oracle.PoolSize)
	if err != nil {
		return err
	}
	d.registry = reg
	d.checker.Add(health.Registry(reg.Len))

	d.dispatcher = dispatcher.New(d.gw, d.source,
		dispatcher.WithGasLimit(d.cfg.Gas.SubmissionLimit),
		dispatcher.WithTimeout(d.cfg.Dispatch.Timeout.Duration),
		dispatcher.WithRetry(d.retryConfig()),
		dispatcher.WithMaxInFlight(int64(d.cfg.Dispatch.MaxInFlight)),
		dispatcher.WithRecorder(d.monitor),
	)
	d.listener = subscribe.NewListener(d.gw, subscribe.WithMetrics(d.monitor.Metrics()))

	if d.cfg.Server.Enabled {
		d.server = server.New(server.Deps{
			Oracles: reg,
			Monitor: d.monitor,
			Health:  d.checker,
			Stats:   d.listener.Stats,
		})
		if err := d.server.Start(d.cfg.Server.Listen); err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
	}

	return nil
}

func (d *Daemon) retryConfig() retry.Config {
	if d.cfg.Dispatch.MaxAttempts <= 1 {
		return retry.Once()
	}

	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = d.cfg.Dispatch.MaxAttempts
	return cfg
}

// Run listens for oracle requests until ctx is cancelled or the stream
// fails. Start must have succeeded.
func (d *Daemon) Run(ctx context.Context) error {
	checkCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.checker.Start(checkCtx)
	}()

	return d.listener.Listen(ctx, d.cfg.Chain.FromBlock, func(event types.QueryEvent) {
		d.handle(ctx, event)
	})
}

func (d *Daemon) handle(ctx context.Context, event types.QueryEvent) {
	matched := registry.Match(event, d.registry)
	if len(matched) == 0 {
		log.Debugf("no oracle holds index %s for %s", event.SelectorIndex, event.Flight)
		return
	}

	log.Infof("%d oracles selected for %s", len(matched), event)
	d.dispatcher.Submit(ctx, matched, event)
}

// Stop waits for in-flight submissions and releases the ledger connection.
func (d *Daemon) Stop() {
	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := d.server.Shutdown(ctx); err != nil {
			log.Errorf("failed to stop status server: %v", err)
		}
		cancel()
	}
	if d.dispatcher != nil {
		d.dispatcher.Wait()
	}
	d.wg.Wait()
	if d.closeGw != nil {
		d.closeGw()
	}
	log.Infof("daemon stopped")
}

func (d *Daemon) Registry() *registry.Registry {
	return d.registry
}

func (d *Daemon) Monitor() *monitor.Monitor {
	return d.monitor
}

func (d *Daemon) Listener() *subscribe.Listener {
	return d.listener
}

func (d *Daemon) Pool() *wallet.Pool {
	return d.pool
}
