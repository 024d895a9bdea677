// Package app assembles the trade protocol engine out of the configuration
// and the collaborators provided by the hosting node, and drives its
// lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeprotocol/internal/config"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/application/bsqswap"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/application/escrow"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/application/protocol"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/ports"
	esplorachain "github.com/tdex-network/tdex-tradeprotocol/internal/infrastructure/chain/esplora"
	esplorafee "github.com/tdex-network/tdex-tradeprotocol/internal/infrastructure/fee/esplora"
	"github.com/tdex-network/tdex-tradeprotocol/internal/infrastructure/metrics"
	webhookpubsub "github.com/tdex-network/tdex-tradeprotocol/internal/infrastructure/pubsub/webhook"
	dbbadger "github.com/tdex-network/tdex-tradeprotocol/internal/infrastructure/storage/db/badger"
)

const shutdownTimeout = 5 * time.Second

// Collaborators are the services of the hosting node the engine relies on,
// and the hash of the local payment account. FeeService and ChainNotifier
// are optional, the esplora ones are used if not given.
type Collaborators struct {
	PaymentAccountPayloadHash []byte

	Wallet              ports.Wallet
	Network             ports.Network
	KeyRing             ports.KeyRing
	OfferBook           ports.OfferBook
	Filter              ports.Filter
	StatisticsPublisher ports.StatisticsPublisher
	FeeService          ports.FeeService
	ChainNotifier       ports.ChainNotifier
}

// App is the running engine: the protocol service with its storage, chain
// listener, webhooks and metrics.
type App struct {
	svc      *protocol.Service
	repo     ports.RepoManager
	notifier esplorachain.Service
	listener escrow.ConfirmationListener
	webhooks *webhookpubsub.Service
	registry *prometheus.Registry
	server   *http.Server

	stopOnce sync.Once
}

// New builds the engine from the loaded config. config.InitConfig must have
// been called before.
func New(collab Collaborators) (*App, error) {
	cfg, err := config.ProtocolConfig()
	if err != nil {
		return nil, err
	}
	cfg.PaymentAccountPayloadHash = collab.PaymentAccountPayloadHash

	repo, err := dbbadger.NewRepoManager(config.GetDbDir(), log.StandardLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	a := &App{repo: repo, registry: prometheus.NewRegistry()}
	if err := a.build(cfg, collab); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg protocol.Config, collab Collaborators) error {
	esploraUrl := config.GetString(config.EsploraUrlKey)

	feeService := collab.FeeService
	if feeService == nil {
		svc, err := esplorafee.NewService(
			esploraUrl, config.GetInt(config.FeeConfTargetKey),
		)
		if err != nil {
			return err
		}
		feeService = svc
	}

	notifier := collab.ChainNotifier
	if notifier == nil {
		svc, err := esplorachain.NewService(esplorachain.Opts{
			ApiURL:       esploraUrl,
			PollInterval: config.GetDuration(config.ChainPollIntervalKey),
		})
		if err != nil {
			return err
		}
		a.notifier = svc
		notifier = svc
	}

	collectors, err := metrics.NewPrometheusMetrics(a.registry)
	if err != nil {
		return err
	}

	sequences := append(escrow.Sequences(), bsqswap.Sequences()...)
	svc, err := protocol.NewService(cfg, protocol.Provider{
		Wallet:              collab.Wallet,
		Network:             collab.Network,
		FeeService:          feeService,
		KeyRing:             collab.KeyRing,
		OfferBook:           collab.OfferBook,
		Filter:              collab.Filter,
		StatisticsPublisher: collab.StatisticsPublisher,
		ChainNotifier:       notifier,
		Repo:                a.repo,
	}, sequences, protocol.WithMetrics(collectors))
	if err != nil {
		return err
	}
	a.svc = svc
	a.listener = escrow.NewConfirmationListener(svc, notifier, collab.OfferBook)

	if endpoint := config.GetString(config.WebhookEndpointKey); len(endpoint) > 0 {
		a.webhooks = webhookpubsub.NewService()
		if _, err := a.webhooks.Subscribe(
			webhookpubsub.AnyTopic, endpoint, config.GetString(config.WebhookSecretKey),
		); err != nil {
			return fmt.Errorf("invalid webhook: %w", err)
		}
	}

	if addr := config.GetString(config.MetricsAddressKey); len(addr) > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.MetricsHandler())
		a.server = &http.Server{Addr: addr, Handler: mux}
	}
	return nil
}

// Service returns the protocol service, the entry point of the trading
// peers and of the user actions.
func (a *App) Service() *protocol.Service {
	return a.svc
}

// MetricsHandler serves the collectors of the engine.
func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
}

// Start resumes the interrupted pipelines and starts every background
// routine of the engine.
func (a *App) Start(ctx context.Context) error {
	a.listener.Listen()
	if a.webhooks != nil {
		a.webhooks.Start(a.svc)
	}
	if err := a.svc.Start(ctx); err != nil {
		return err
	}

	if a.server != nil {
		go func() {
			if err := a.server.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Warn("metrics server stopped")
			}
		}()
		log.Infof("serving metrics on %s", a.server.Addr)
	}

	log.Info("trade protocol engine started")
	return nil
}

// Stop shuts down the engine. It's safe to call it more than once.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		if a.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			// nolint
			a.server.Shutdown(ctx)
			cancel()
		}
		if a.webhooks != nil {
			a.webhooks.Stop()
		}
		a.listener.StopListening()
		a.svc.Stop()
		a.close()
		log.Info("trade protocol engine stopped")
	})
}

func (a *App) close() {
	if a.notifier != nil {
		a.notifier.Stop()
	}
	a.repo.Close()
}

// Run starts the engine and stops it on SIGINT, SIGTERM or once the context
// is done.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		a.Stop()
		return err
	}
	defer a.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}
	log.Debug("exiting")
	return nil
}
