package gateway

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/warehouselabs/replica-gateway/datasetcfg"
	"github.com/warehouselabs/replica-gateway/gateway/apiimpl"
	"github.com/warehouselabs/replica-gateway/gateway/apiimpl/server_v1"
	"github.com/warehouselabs/replica-gateway/gateway/auth"
	"github.com/warehouselabs/replica-gateway/gateway/ratelimiting"
	"github.com/warehouselabs/replica-gateway/gateway/system"
	"github.com/warehouselabs/replica-gateway/provision"
	"github.com/warehouselabs/replica-gateway/replication"
	"github.com/warehouselabs/replica-gateway/utils/latestonlychannel"
	"github.com/warehouselabs/replica-gateway/utils/netutils"
	"github.com/warehouselabs/replica-gateway/warehouse"
	"github.com/warehouselabs/replica-gateway/warehouse/bigquery"
	"github.com/warehouselabs/replica-gateway/warehouse/emulator"
	"go.uber.org/zap"
)

const (
	BackendBigQuery = "bigquery"
	BackendEmulator = "emulator"
)

type ServicePorts struct {
	API int `json:"api,omitempty"`
}

type StartupInfo struct {
	SessionID      string
	AdvertiseAddr  string
	AdvertisePorts ServicePorts
}

type Config struct {
	Logger *zap.Logger

	// Backend selects the warehouse implementation, bigquery by default.
	Backend           string
	ProjectID         string
	CredentialsJSON   []byte
	WarehouseEndpoint string

	DatasetsConfigPath  string
	WatchDatasetsConfig bool
	ApplyConcurrency    int

	Daemon bool
	Debug  bool

	BindAddress string
	BindApiPort int

	ApiCertificate tls.Certificate

	// Username guards the v1 API behind basic auth when non-empty.
	Username string
	Password string

	RateLimit int

	StartupCallback func(*StartupInfo)
}

type engineGeneration struct {
	engine *server_v1.Engine
	hash   string
}

type Gateway struct {
	logger *zap.Logger
	config *Config

	client   warehouse.Client
	reader   *replication.CatalogReader
	executor *replication.Executor

	generation  atomic.Pointer[engineGeneration]
	rateLimiter *ratelimiting.GlobalRateLimiter

	sys       *system.System
	listeners *system.Listeners

	isShutdown atomic.Bool
}

var _ server_v1.Runtime = (*Gateway)(nil)

func NewGateway(config *Config) (*Gateway, error) {
	switch config.Backend {
	case "", BackendBigQuery:
		if config.ProjectID == "" {
			return nil, fmt.Errorf("a project id must be configured for the bigquery backend")
		}
	case BackendEmulator:
	default:
		return nil, fmt.Errorf("unknown warehouse backend %q", config.Backend)
	}

	gw := &Gateway{
		logger:      config.Logger,
		config:      config,
		rateLimiter: ratelimiting.NewGlobalRateLimiter(uint64(config.RateLimit), 1*time.Second),
	}

	return gw, nil
}

// Run wires the gateway together and serves until the context is cancelled
// or Shutdown is called.
func Run(ctx context.Context, config *Config) error {
	gw, err := NewGateway(config)
	if err != nil {
		return err
	}

	return gw.Run(ctx)
}

func (g *Gateway) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	client, err := g.connectWarehouse(runCtx)
	if err != nil {
		return err
	}
	g.client = client
	defer func() {
		if err := g.client.Close(); err != nil {
			g.logger.Warn("failed to close warehouse client", zap.Error(err))
		}
	}()

	g.reader = replication.NewCatalogReader(&replication.CatalogReaderOptions{
		Logger: g.logger.Named("reader"),
		Client: g.client,
	})
	g.executor = replication.NewExecutor(&replication.ExecutorOptions{
		Logger: g.logger.Named("executor"),
		Client: g.client,
	})

	datasetsConfig, configHash, err := g.loadDatasetsConfig()
	if err != nil {
		if !g.config.Daemon {
			return err
		}
		g.logger.Error("failed to load datasets configuration, continuing without it",
			zap.Error(err))
		datasetsConfig = nil
	}

	engine := g.newEngine()
	g.generation.Store(&engineGeneration{engine: engine, hash: configHash})

	apiServers := apiimpl.New(&apiimpl.NewOptions{
		Logger:  g.logger.Named("api"),
		Runtime: g,
		Debug:   g.config.Debug,
	})

	var apiTlsConfig *tls.Config
	if len(g.config.ApiCertificate.Certificate) > 0 {
		apiTlsConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{g.config.ApiCertificate},
		}
	}

	var authenticator auth.Authenticator
	if g.config.Username != "" {
		authenticator = &auth.SingleUserAuthenticator{
			Username: g.config.Username,
			Password: g.config.Password,
		}
	}

	sys, err := system.NewSystem(&system.SystemOptions{
		Logger:        g.logger.Named("system"),
		ApiImpl:       apiServers,
		RateLimiter:   g.rateLimiter,
		ApiTlsConfig:  apiTlsConfig,
		Authenticator: authenticator,
		Debug:         g.config.Debug,
	})
	if err != nil {
		return err
	}
	g.sys = sys

	listeners, err := system.NewListeners(&system.ListenersOptions{
		Address: g.config.BindAddress,
		ApiPort: g.config.BindApiPort,
	})
	if err != nil {
		return err
	}
	g.listeners = listeners

	if g.config.WatchDatasetsConfig && g.config.DatasetsConfigPath != "" {
		stopWatching, err := g.watchDatasetsConfig(runCtx)
		if err != nil {
			return err
		}
		defer stopWatching()
	}

	if g.config.StartupCallback != nil {
		advertiseAddr, err := netutils.GetAdvertiseAddress(g.config.BindAddress)
		if err != nil {
			g.logger.Warn("failed to identify an advertise address", zap.Error(err))
			advertiseAddr = "127.0.0.1"
		}

		g.config.StartupCallback(&StartupInfo{
			SessionID:     engine.Store.ID().String(),
			AdvertiseAddr: advertiseAddr,
			AdvertisePorts: ServicePorts{
				API: listeners.BoundApiPort(),
			},
		})
	}

	// the initial convergence pass runs alongside the api so that a large
	// datasets file does not delay serving
	if datasetsConfig != nil {
		go g.applyDatasets(runCtx, engine, datasetsConfig)
	}

	return g.sys.Serve(runCtx, g.listeners)
}

// Shutdown gracefully stops the api server, which in turn lets Run finish.
func (g *Gateway) Shutdown() {
	if !g.isShutdown.CompareAndSwap(false, true) {
		return
	}

	g.logger.Info("shutting down gateway")
	if g.sys != nil {
		g.sys.Shutdown()
	}
}

type ReconfigureOptions struct {
	RateLimit int
}

func (g *Gateway) Reconfigure(opts *ReconfigureOptions) error {
	g.logger.Info("updating gateway rate limit", zap.Int("rateLimit", opts.RateLimit))
	g.rateLimiter.ResetAndUpdateRateLimit(uint64(opts.RateLimit), 1*time.Second)
	return nil
}

// Engine returns the current session's components for the api handlers.
func (g *Gateway) Engine() *server_v1.Engine {
	return g.generation.Load().engine
}

func (g *Gateway) Reader() replication.TopologyReader {
	return g.reader
}

func (g *Gateway) connectWarehouse(ctx context.Context) (warehouse.Client, error) {
	connect := func() (warehouse.Client, error) {
		if g.config.Backend == BackendEmulator {
			return emulator.New(g.logger.Named("emulator"))
		}
		return bigquery.NewClient(ctx, &bigquery.ClientOptions{
			Logger:          g.logger.Named("bigquery"),
			ProjectID:       g.config.ProjectID,
			CredentialsJSON: g.config.CredentialsJSON,
			Endpoint:        g.config.WarehouseEndpoint,
		})
	}

	if !g.config.Daemon {
		return connect()
	}

	// in daemon mode we keep retrying rather than exiting on initial failure
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	return backoff.RetryWithData(func() (warehouse.Client, error) {
		client, err := connect()
		if err != nil {
			g.logger.Warn("failed to connect to the warehouse, will retry",
				zap.Error(err))
			return nil, err
		}
		return client, nil
	}, backoff.WithContext(b, ctx))
}

func (g *Gateway) newEngine() *server_v1.Engine {
	store := replication.NewSessionStore()
	coordinator := replication.NewCoordinator(&replication.CoordinatorOptions{
		Logger:   g.logger.Named("coordinator"),
		Reader:   g.reader,
		Executor: g.executor,
		Store:    store,
	})
	provisioner := provision.NewProvisioner(&provision.ProvisionerOptions{
		Logger:      g.logger.Named("provisioner"),
		Client:      g.client,
		Reader:      g.reader,
		Coordinator: coordinator,
	})

	return &server_v1.Engine{
		Provisioner: provisioner,
		Coordinator: coordinator,
		Store:       store,
	}
}

func (g *Gateway) loadDatasetsConfig() (*datasetcfg.Config, string, error) {
	if g.config.DatasetsConfigPath == "" {
		return nil, "", nil
	}

	cfg, err := datasetcfg.Load(g.config.DatasetsConfigPath)
	if err != nil {
		return nil, "", err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, err := range errs {
			g.logger.Error("invalid datasets configuration", zap.Error(err))
		}
		return nil, "", fmt.Errorf("datasets configuration has %d errors: %w",
			len(errs), errs[0])
	}

	hash, err := cfg.Hash()
	if err != nil {
		return nil, "", err
	}

	return cfg, hash, nil
}

func (g *Gateway) watchDatasetsConfig(ctx context.Context) (func(), error) {
	watcher, err := datasetcfg.NewConfigWatcher(&datasetcfg.ConfigWatcherOptions[*datasetcfg.Config]{
		Logger: g.logger.Named("datasets-watcher"),
		Path:   g.config.DatasetsConfigPath,
		Decode: datasetcfg.Parse,
	})
	if err != nil {
		return nil, err
	}

	ch := make(chan *datasetcfg.Config)
	unsubscribe := watcher.Subscribe(ch)

	// A convergence pass can outlast several rewrites of the file; only the
	// newest generation matters by the time we get back around.
	cfgCh := latestonlychannel.Wrap(ch)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-cfgCh:
				if !ok {
					return
				}
				g.onDatasetsConfigChanged(ctx, cfg)
			}
		}
	}()

	return func() {
		unsubscribe()
		close(ch)
		watcher.Close()
	}, nil
}

// onDatasetsConfigChanged starts a new session when the datasets file content
// actually changed, then reconverges everything against it.
func (g *Gateway) onDatasetsConfigChanged(ctx context.Context, cfg *datasetcfg.Config) {
	hash, err := cfg.Hash()
	if err != nil {
		g.logger.Warn("failed to hash datasets configuration", zap.Error(err))
		return
	}

	current := g.generation.Load()
	if current != nil && current.hash == hash {
		g.logger.Debug("datasets configuration rewritten without changes",
			zap.String("hash", hash))
		return
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, err := range errs {
			g.logger.Error("ignoring invalid datasets configuration", zap.Error(err))
		}
		return
	}

	engine := g.newEngine()
	g.generation.Store(&engineGeneration{engine: engine, hash: hash})
	g.logger.Info("datasets configuration changed, starting a new session",
		zap.String("hash", hash),
		zap.String("sessionId", engine.Store.ID().String()))

	g.applyDatasets(ctx, engine, cfg)
}

func (g *Gateway) applyDatasets(ctx context.Context, engine *server_v1.Engine, cfg *datasetcfg.Config) {
	outcomes, err := engine.Provisioner.ApplyAll(ctx, cfg, provision.ApplyOptions{
		Concurrency: g.config.ApplyConcurrency,
	})
	if err != nil {
		g.logger.Warn("dataset convergence pass interrupted", zap.Error(err))
	}

	var failed int
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			failed++
		}
	}

	g.logger.Info("dataset convergence pass complete",
		zap.Int("datasets", len(outcomes)),
		zap.Int("failed", failed),
		zap.String("sessionId", engine.Store.ID().String()))
}
