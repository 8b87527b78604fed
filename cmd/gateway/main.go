package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime/pprof"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/warehouselabs/replica-gateway/gateway"
	"github.com/warehouselabs/replica-gateway/pkg/webapi"
	"github.com/warehouselabs/replica-gateway/utils/buildversion"
	"github.com/warehouselabs/replica-gateway/utils/secretsmanager"
	"github.com/warehouselabs/replica-gateway/utils/selfsignedcert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var buildVersion string = buildversion.GetVersion("github.com/warehouselabs/replica-gateway")

var rootCmd = &cobra.Command{
	Version: buildVersion,

	Use:   "replica-gateway",
	Short: "A service for reconciling warehouse dataset replication topologies",

	Run: func(cmd *cobra.Command, args []string) {
		if autoRestart && !autoRestartProc {
			startGatewayWatchdog()
			return
		}

		startGateway()
	},
}

var cfgFile string
var watchCfgFile bool
var daemon bool
var autoRestart bool
var autoRestartProc bool

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "specifies a config file to load")
	rootCmd.Flags().BoolVar(&watchCfgFile, "watch-config", false, "indicates whether to watch the config file for changes")
	rootCmd.Flags().BoolVar(&daemon, "daemon", false, "in daemon mode, replica-gateway will not exit on initial failure")
	rootCmd.Flags().BoolVar(&autoRestart, "auto-restart", false, "in auto-restart mode, we run in a child process to auto-restart on failure")
	rootCmd.Flags().BoolVar(&autoRestartProc, "auto-restart-proc", false, "in auto-restart mode, indicates we are the child process")
	_ = rootCmd.Flags().MarkHidden("auto-restart-proc")

	configFlags := pflag.NewFlagSet("", pflag.ContinueOnError)
	configFlags.String("log-level", "info", "the log level to run at")
	configFlags.String("backend", "bigquery", "the warehouse backend, bigquery or emulator")
	configFlags.String("project", "", "the warehouse project id")
	configFlags.String("credentials-file", "", "path to a service account key file for the warehouse")
	configFlags.String("warehouse-endpoint", "", "overrides the warehouse api endpoint")
	configFlags.String("datasets-config", "", "path to the datasets configuration file")
	configFlags.Bool("watch-datasets-config", false, "indicates whether to watch the datasets configuration for changes")
	configFlags.Int("apply-concurrency", 4, "how many datasets to converge at once")
	configFlags.String("bind-address", "0.0.0.0", "the local address to bind to")
	configFlags.Int("api-port", 8098, "the api port")
	configFlags.Int("web-port", 9091, "the web metrics/health port")
	configFlags.Bool("self-sign", false, "specifies to allow a self-signed certificate")
	configFlags.String("cert", "", "path to tls cert for the api")
	configFlags.String("key", "", "path to private tls key for the api")
	configFlags.String("api-user", "", "username guarding the api, empty disables auth")
	configFlags.String("api-pass", "", "password guarding the api")
	configFlags.Int("rate-limit", 0, "specifies the maximum requests per second to allow")
	configFlags.String("otlp-endpoint", "", "opentelemetry endpoint to send telemetry to")
	configFlags.Bool("disable-otlp-traces", false, "disable sending traces to otlp")
	configFlags.Bool("disable-otlp-metrics", false, "disable sending metrics to otlp")
	configFlags.Bool("trace-everything", false, "enables tracing of all components")
	configFlags.Bool("debug", false, "enable debug mode")
	configFlags.String("cpuprofile", "", "write cpu profile to a file")
	configFlags.String("api-creds-aws-id", "", "id of secret in aws sm storing api credentials")
	configFlags.String("api-creds-aws-region", "", "region of api-creds-aws-id secret")
	configFlags.String("api-creds-azure-id", "", "id of secret in azure kv storing api credentials")
	configFlags.String("api-creds-azure-vault-name", "", "name of key vault storing api-creds-azure-id")
	configFlags.String("api-creds-gcp-id", "", "id of secret in gcp sm storing api credentials")
	configFlags.String("api-creds-gcp-project-id", "", "id of project containing api-creds-gcp-id")
	configFlags.String("sa-key-gcp-id", "", "id of secret in gcp sm storing the warehouse service account key")
	rootCmd.Flags().AddFlagSet(configFlags)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.SetEnvPrefix("rgw")
	viper.AutomaticEnv()

	_ = viper.BindPFlags(configFlags)

	rootCmd.AddCommand(applyCmd)
}

func initTelemetry(
	ctx context.Context,
	logger *zap.Logger,
	otlpEndpoint string,
	enableTraces bool,
	enableMetrics bool,
	traceEverything bool,
) (
	*sdktrace.TracerProvider,
	*sdkmetric.MeterProvider,
	error,
) {
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			// the service name used to display traces in backends
			semconv.ServiceNameKey.String("replica-gateway"),
		),
	)
	if err != nil {
		if res == nil {
			return nil, nil, err
		}

		logger.Warn("failed to setup some part of opentelemetry resource", zap.Error(err))
	}

	promExp, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	var meterProvider *sdkmetric.MeterProvider
	if !enableMetrics || otlpEndpoint == "" {
		meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(promExp),
		)
	} else {
		metricExp, err := otlpmetricgrpc.New(
			ctx,
			otlpmetricgrpc.WithInsecure(),
			otlpmetricgrpc.WithEndpoint(otlpEndpoint))
		if err != nil {
			return nil, nil, err
		}

		meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(promExp),
			sdkmetric.WithReader(
				sdkmetric.NewPeriodicReader(
					metricExp,
				),
			),
		)
	}

	var tracerProvider *sdktrace.TracerProvider
	if !enableTraces || otlpEndpoint == "" {
		// we can just return nil here...
	} else {
		traceClient := otlptracegrpc.NewClient(
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithEndpoint(otlpEndpoint))
		traceExp, err := otlptrace.New(ctx, traceClient)
		if err != nil {
			return nil, nil, err
		}

		baseTracing := sdktrace.NeverSample()
		if traceEverything {
			baseTracing = sdktrace.AlwaysSample()
		}

		bsp := sdktrace.NewBatchSpanProcessor(traceExp)
		tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.ParentBased(baseTracing)),
			sdktrace.WithResource(res),
			sdktrace.WithSpanProcessor(bsp),
		)
	}

	return tracerProvider, meterProvider, nil
}

func getLogger() (zap.AtomicLevel, *zap.Logger) {
	logLevel := zap.NewAtomicLevel()
	logConfig := zap.NewProductionEncoderConfig()
	logConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	jsonEncoder := zapcore.NewJSONEncoder(logConfig)
	core := zapcore.NewTee(
		zapcore.NewCore(jsonEncoder, zapcore.AddSync(os.Stdout), logLevel),
	)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return logLevel, logger
}

type config struct {
	logLevelStr            string
	backend                string
	project                string
	credentialsFile        string
	warehouseEndpoint      string
	datasetsConfig         string
	watchDatasetsConfig    bool
	applyConcurrency       int
	bindAddress            string
	apiPort                int
	webPort                int
	selfSign               bool
	certPath               string
	keyPath                string
	apiUser                string
	apiPass                string
	rateLimit              int
	otlpEndpoint           string
	disableOtlpTraces      bool
	disableOtlpMetrics     bool
	traceEverything        bool
	debug                  bool
	cpuprofile             string
	apiCredsAwsId          string
	apiCredsAwsRegion      string
	apiCredsAzureId        string
	apiCredsAzureVaultName string
	apiCredsGcpId          string
	apiCredsGcpProjectId   string
	saKeyGcpId             string
}

func readConfig(logger *zap.Logger) *config {
	config := &config{
		logLevelStr:            viper.GetString("log-level"),
		backend:                viper.GetString("backend"),
		project:                viper.GetString("project"),
		credentialsFile:        viper.GetString("credentials-file"),
		warehouseEndpoint:      viper.GetString("warehouse-endpoint"),
		datasetsConfig:         viper.GetString("datasets-config"),
		watchDatasetsConfig:    viper.GetBool("watch-datasets-config"),
		applyConcurrency:       viper.GetInt("apply-concurrency"),
		bindAddress:            viper.GetString("bind-address"),
		apiPort:                viper.GetInt("api-port"),
		webPort:                viper.GetInt("web-port"),
		selfSign:               viper.GetBool("self-sign"),
		certPath:               viper.GetString("cert"),
		keyPath:                viper.GetString("key"),
		apiUser:                viper.GetString("api-user"),
		apiPass:                viper.GetString("api-pass"),
		rateLimit:              viper.GetInt("rate-limit"),
		otlpEndpoint:           viper.GetString("otlp-endpoint"),
		disableOtlpTraces:      viper.GetBool("disable-otlp-traces"),
		disableOtlpMetrics:     viper.GetBool("disable-otlp-metrics"),
		traceEverything:        viper.GetBool("trace-everything"),
		debug:                  viper.GetBool("debug"),
		cpuprofile:             viper.GetString("cpuprofile"),
		apiCredsAwsId:          viper.GetString("api-creds-aws-id"),
		apiCredsAwsRegion:      viper.GetString("api-creds-aws-region"),
		apiCredsAzureId:        viper.GetString("api-creds-azure-id"),
		apiCredsAzureVaultName: viper.GetString("api-creds-azure-vault-name"),
		apiCredsGcpId:          viper.GetString("api-creds-gcp-id"),
		apiCredsGcpProjectId:   viper.GetString("api-creds-gcp-project-id"),
		saKeyGcpId:             viper.GetString("sa-key-gcp-id"),
	}

	logger.Info("parsed gateway configuration",
		zap.String("logLevelStr", config.logLevelStr),
		zap.String("backend", config.backend),
		zap.String("project", config.project),
		zap.String("credentialsFile", config.credentialsFile),
		zap.String("warehouseEndpoint", config.warehouseEndpoint),
		zap.String("datasetsConfig", config.datasetsConfig),
		zap.Bool("watchDatasetsConfig", config.watchDatasetsConfig),
		zap.Int("applyConcurrency", config.applyConcurrency),
		zap.String("bindAddress", config.bindAddress),
		zap.Int("apiPort", config.apiPort),
		zap.Int("webPort", config.webPort),
		zap.Bool("selfSign", config.selfSign),
		zap.String("certPath", config.certPath),
		zap.String("keyPath", config.keyPath),
		zap.String("apiUser", config.apiUser),
		// zap.String("apiPass", config.apiPass),
		zap.Int("rateLimit", config.rateLimit),
		zap.String("otlpEndpoint", config.otlpEndpoint),
		zap.Bool("disableOtlpTraces", config.disableOtlpTraces),
		zap.Bool("disableOtlpMetrics", config.disableOtlpMetrics),
		zap.Bool("traceEverything", config.traceEverything),
		zap.Bool("debug", config.debug),
		zap.String("cpuprofile", config.cpuprofile),
		zap.String("apiCredsAwsId", config.apiCredsAwsId),
		zap.String("apiCredsAwsRegion", config.apiCredsAwsRegion),
		zap.String("apiCredsAzureId", config.apiCredsAzureId),
		zap.String("apiCredsAzureVaultName", config.apiCredsAzureVaultName),
		zap.String("apiCredsGcpId", config.apiCredsGcpId),
		zap.String("apiCredsGcpProjectId", config.apiCredsGcpProjectId),
		zap.String("saKeyGcpId", config.saKeyGcpId))

	return config
}

func startGateway() {
	// initialize the logger
	logLevel, logger := getLogger()

	// signal that we are starting
	buildVersion := buildversion.GetVersion("github.com/warehouselabs/replica-gateway")
	logger.Info("starting replica-gateway", zap.String("version", buildVersion))

	logger.Info("parsed launch configuration",
		zap.String("config", cfgFile),
		zap.Bool("watch-config", watchCfgFile),
		zap.Bool("daemon", daemon))

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		err := viper.ReadInConfig()
		if err != nil {
			logger.Panic("failed to load specified config file", zap.Error(err))
		}
	}

	config := readConfig(logger)

	parsedLogLevel, err := zapcore.ParseLevel(config.logLevelStr)
	if err != nil {
		logger.Warn("invalid log level specified, using INFO instead")
		parsedLogLevel = zapcore.InfoLevel
	}
	logLevel.SetLevel(parsedLogLevel)

	// setup profiling
	if config.cpuprofile != "" {
		f, err := os.Create(config.cpuprofile)
		if err != nil {
			logger.Error("failed to create cpu profile file", zap.Error(err))
			os.Exit(1)
		}

		err = pprof.StartCPUProfile(f)
		if err != nil {
			logger.Error("failed to start cpu profiling", zap.Error(err))
			os.Exit(1)
		}

		defer pprof.StopCPUProfile()
	}

	// setup tracing
	otlpTracerProvider, otlpMeterProvider, err :=
		initTelemetry(context.Background(),
			logger,
			config.otlpEndpoint,
			!config.disableOtlpTraces,
			!config.disableOtlpMetrics,
			config.traceEverything)
	if err != nil {
		logger.Error("failed to initialize opentelemetry tracing", zap.Error(err))
		os.Exit(1)
	}

	if otlpTracerProvider != nil {
		otel.SetTracerProvider(otlpTracerProvider)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	}
	if otlpMeterProvider != nil {
		otel.SetMeterProvider(otlpMeterProvider)
	}

	// setup the web service
	webListenAddress := fmt.Sprintf("%s:%v", config.bindAddress, config.webPort)
	webapi.InitializeWebServer(webapi.WebServerOptions{
		Logger:        logger,
		LogLevel:      &logLevel,
		ListenAddress: webListenAddress,
	})

	var selfSignedCert *tls.Certificate
	if config.selfSign {
		generatedCert, err := selfsignedcert.GenerateCertificate()
		if err != nil {
			logger.Error("failed to generate a self-signed certificate")
			os.Exit(1)
		}

		selfSignedCert = generatedCert
	}

	var apiCertificate tls.Certificate
	if config.certPath != "" || config.keyPath != "" {
		if config.certPath == "" || config.keyPath == "" {
			logger.Error("must specify both cert and key to serve the api over tls")
			os.Exit(1)
		}

		loadedTlsCertificate, err := tls.LoadX509KeyPair(config.certPath, config.keyPath)
		if err != nil {
			logger.Error("failed to load tls certificate", zap.Error(err))
			os.Exit(1)
		}

		apiCertificate = loadedTlsCertificate
	} else if selfSignedCert != nil {
		apiCertificate = *selfSignedCert
	} else {
		logger.Info("no certificate configured, serving the api over plain http")
	}

	if config.apiCredsAwsId != "" {
		if config.apiUser != "" || config.apiPass != "" {
			logger.Error("cannot use api-user or api-pass when fetching creds from cloud provider")
			os.Exit(1)
		}

		if config.apiCredsAwsRegion == "" {
			logger.Error("must specify region and id when fetching secrets from aws")
			os.Exit(1)
		}

		logger.Info("fetching api credentials from aws secrets manager")
		config.apiUser, config.apiPass, err = secretsmanager.FetchAWSSecret(config.apiCredsAwsId, config.apiCredsAwsRegion)

		if err != nil {
			logger.Error("failed to fetch api credentials from aws", zap.Error(err))
			os.Exit(1)
		}
	}

	if config.apiCredsAzureId != "" {
		if config.apiUser != "" || config.apiPass != "" {
			logger.Error("cannot use api-user or api-pass when fetching creds from cloud provider")
			os.Exit(1)
		}

		if config.apiCredsAzureVaultName == "" {
			logger.Error("must specify key vault name and id when fetching secrets from azure")
			os.Exit(1)
		}

		logger.Info("fetching api credentials from azure key vault")
		config.apiUser, config.apiPass, err = secretsmanager.FetchAzureSecret(config.apiCredsAzureId, config.apiCredsAzureVaultName)

		if err != nil {
			logger.Error("failed to fetch api credentials from azure", zap.Error(err))
			os.Exit(1)
		}
	}

	if config.apiCredsGcpId != "" {
		if config.apiUser != "" || config.apiPass != "" {
			logger.Error("cannot use api-user or api-pass when fetching creds from cloud provider")
			os.Exit(1)
		}

		if config.apiCredsGcpProjectId == "" {
			logger.Error("must specify project and secret ids when fetching secrets from gcp")
			os.Exit(1)
		}

		logger.Info("fetching api credentials from gcp secrets manager")
		config.apiUser, config.apiPass, err = secretsmanager.FetchGcpSecret(config.apiCredsGcpId, config.apiCredsGcpProjectId)

		if err != nil {
			logger.Error("failed to fetch api credentials from gcp", zap.Error(err))
			os.Exit(1)
		}
	}

	var credentialsJSON []byte
	if config.credentialsFile != "" {
		credentialsJSON, err = os.ReadFile(config.credentialsFile)
		if err != nil {
			logger.Error("failed to read warehouse credentials file", zap.Error(err))
			os.Exit(1)
		}
	}

	if config.saKeyGcpId != "" {
		if config.credentialsFile != "" {
			logger.Error("cannot use credentials-file when fetching the service account key from gcp")
			os.Exit(1)
		}

		if config.project == "" {
			logger.Error("must specify a project when fetching the service account key from gcp")
			os.Exit(1)
		}

		logger.Info("fetching warehouse service account key from gcp secrets manager")
		credentialsJSON, err = secretsmanager.FetchGcpServiceAccountKey(config.saKeyGcpId, config.project)
		if err != nil {
			logger.Error("failed to fetch warehouse service account key from gcp", zap.Error(err))
			os.Exit(1)
		}
	}

	gatewayConfig := &gateway.Config{
		Logger:              logger.Named("gateway"),
		Backend:             config.backend,
		ProjectID:           config.project,
		CredentialsJSON:     credentialsJSON,
		WarehouseEndpoint:   config.warehouseEndpoint,
		DatasetsConfigPath:  config.datasetsConfig,
		WatchDatasetsConfig: config.watchDatasetsConfig,
		ApplyConcurrency:    config.applyConcurrency,
		Daemon:              daemon,
		Debug:               config.debug,
		BindAddress:         config.bindAddress,
		BindApiPort:         config.apiPort,
		ApiCertificate:      apiCertificate,
		Username:            config.apiUser,
		Password:            config.apiPass,
		RateLimit:           config.rateLimit,
		StartupCallback: func(m *gateway.StartupInfo) {
			webapi.MarkSystemHealthy()
		},
	}

	gw, err := gateway.NewGateway(gatewayConfig)
	if err != nil {
		logger.Error("failed to initialize the gateway", zap.Error(err))
		os.Exit(1)
	}

	var configLock sync.Mutex
	reloadConfiguration := func() {
		configLock.Lock()
		defer configLock.Unlock()

		err := viper.ReadInConfig()
		if err != nil {
			logger.Warn("failed to parse configuration file",
				zap.Error(err))
		}

		newConfig := readConfig(logger)

		if newConfig.backend != config.backend ||
			newConfig.project != config.project ||
			newConfig.credentialsFile != config.credentialsFile ||
			newConfig.warehouseEndpoint != config.warehouseEndpoint {
			logger.Warn("config changes for backend, project, credentialsFile, or warehouseEndpoint require a restart")
		}

		if newConfig.bindAddress != config.bindAddress ||
			newConfig.apiPort != config.apiPort ||
			newConfig.webPort != config.webPort {
			logger.Warn("config changes for bindAddress, apiPort, or webPort require a restart")
		}

		if newConfig.selfSign != config.selfSign {
			logger.Warn("config changes for selfSign require a restart")
		}

		if newConfig.certPath != config.certPath ||
			newConfig.keyPath != config.keyPath {
			logger.Warn("config changes for certPath or keyPath require a restart")
		}

		if newConfig.apiUser != config.apiUser ||
			newConfig.apiPass != config.apiPass {
			logger.Warn("config changes for apiUser or apiPass require a restart")
		}

		if newConfig.datasetsConfig != config.datasetsConfig ||
			newConfig.watchDatasetsConfig != config.watchDatasetsConfig ||
			newConfig.applyConcurrency != config.applyConcurrency {
			logger.Warn("config changes for datasetsConfig, watchDatasetsConfig, or applyConcurrency require a restart")
		}

		if newConfig.otlpEndpoint != config.otlpEndpoint ||
			newConfig.disableOtlpTraces != config.disableOtlpTraces ||
			newConfig.disableOtlpMetrics != config.disableOtlpMetrics ||
			newConfig.traceEverything != config.traceEverything {
			logger.Warn("config changes for otlpEndpoint, disableOtlpTraces, disableOtlpMetrics, or traceEverything require a restart")
		}

		if newConfig.debug != config.debug {
			logger.Warn("config changes for debug require a restart")
		}

		if newConfig.cpuprofile != config.cpuprofile {
			logger.Warn("config changes for cpuprofile require a restart")
		}

		if newConfig.logLevelStr != config.logLevelStr {
			newParsedLogLevel, err := zapcore.ParseLevel(newConfig.logLevelStr)
			if err != nil {
				logger.Warn("invalid log level specified, using INFO instead")
				newParsedLogLevel = zapcore.InfoLevel
			}

			logLevel.SetLevel(newParsedLogLevel)

			logger.Info("updated log level",
				zap.String("newLevel", newParsedLogLevel.String()))
		}

		if newConfig.rateLimit != config.rateLimit {
			err := gw.Reconfigure(&gateway.ReconfigureOptions{
				RateLimit: newConfig.rateLimit,
			})
			if err != nil {
				logger.Warn("failed to reconfigure system", zap.Error(err))
			}
		}

		config = newConfig
	}

	if watchCfgFile {
		viper.OnConfigChange(func(in fsnotify.Event) {
			logger.Info("configuration file change detected")
			reloadConfiguration()
		})

		go viper.WatchConfig()
	}

	go func() {
		sigCh := make(chan os.Signal, 10)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

		beginGracefulShutdown := func() {
			gw.Shutdown()
		}

		hasReceivedSigInt := false
		for sig := range sigCh {
			if sig == syscall.SIGINT {
				if hasReceivedSigInt {
					logger.Info("Received SIGINT a second time, terminating...")
					os.Exit(1)
				} else {
					logger.Info("Received SIGINT, attempting graceful shutdown...")
					hasReceivedSigInt = true
					beginGracefulShutdown()
				}
			} else if sig == syscall.SIGTERM {
				logger.Info("Received SIGTERM, attempting graceful shutdown...")
				beginGracefulShutdown()
			} else if sig == syscall.SIGHUP {
				logger.Info("Received SIGHUP, reloading configuration...")
				reloadConfiguration()
			}
		}
	}()

	err = gw.Run(context.Background())
	if err != nil {
		logger.Error("failed to run the gateway", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("gateway shutdown gracefully")
}

func startGatewayWatchdog() {
	_, logger := getLogger()
	logger = logger.Named("watchdog")

	execProc := os.Args[0]
	execArgs := append([]string{"--auto-restart-proc"}, os.Args[1:]...)

	hasReceivedSigInt := false
	go func() {
		sigCh := make(chan os.Signal, 10)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		for sig := range sigCh {
			if sig == syscall.SIGINT {
				if hasReceivedSigInt {
					logger.Info("received sigint a second time, terminating...")
					os.Exit(1)
				} else {
					logger.Info("received sigint, waiting for graceful shutdown...")
					hasReceivedSigInt = true
				}
			} else if sig == syscall.SIGTERM {
				logger.Info("received sigterm, waiting for graceful shutdown...")
			}
		}
	}()

	for {
		logger.Info("starting sub-process")

		cmd := exec.Command(execProc, execArgs...)
		cmd.Stderr = os.Stderr
		cmd.Stdout = os.Stdout

		err := cmd.Start()
		if err != nil {
			logger.Info("failed to start sub-process", zap.Error(err))
		}

		err = cmd.Wait()
		if err != nil {
			logger.Info("sub-process exited with error", zap.Error(err))
		}

		if hasReceivedSigInt {
			break
		}

		delayTime := 1 * time.Second
		logger.Info("crash detected, restarting", zap.Duration("delay", delayTime))
		time.Sleep(delayTime)
	}
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}
