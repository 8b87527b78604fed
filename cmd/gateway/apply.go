package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/warehouselabs/replica-gateway/datasetcfg"
	"github.com/warehouselabs/replica-gateway/gateway"
	"github.com/warehouselabs/replica-gateway/provision"
	"github.com/warehouselabs/replica-gateway/replication"
	"github.com/warehouselabs/replica-gateway/warehouse"
	"github.com/warehouselabs/replica-gateway/warehouse/bigquery"
	"github.com/warehouselabs/replica-gateway/warehouse/emulator"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Converges every dataset in a datasets configuration file, then exits",

	Run: func(cmd *cobra.Command, args []string) {
		runApply()
	},
}

var applyDatasetsPath string
var applyBackend string
var applyProject string
var applyCredentialsFile string
var applyEndpoint string
var applyConcurrency int
var applyDryRun bool
var applyLogLevel string

func init() {
	applyCmd.Flags().StringVar(&applyDatasetsPath, "datasets-config", "", "path to the datasets configuration file")
	applyCmd.Flags().StringVar(&applyBackend, "backend", "bigquery", "the warehouse backend, bigquery or emulator")
	applyCmd.Flags().StringVar(&applyProject, "project", "", "the warehouse project id")
	applyCmd.Flags().StringVar(&applyCredentialsFile, "credentials-file", "", "path to a service account key file for the warehouse")
	applyCmd.Flags().StringVar(&applyEndpoint, "warehouse-endpoint", "", "overrides the warehouse api endpoint")
	applyCmd.Flags().IntVar(&applyConcurrency, "concurrency", 4, "how many datasets to converge at once")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "plan every dataset without applying anything")
	applyCmd.Flags().StringVar(&applyLogLevel, "log-level", "info", "the log level to run at")
	_ = applyCmd.MarkFlagRequired("datasets-config")
}

func runApply() {
	logLevel, logger := getLogger()

	parsedLogLevel, err := zapcore.ParseLevel(applyLogLevel)
	if err != nil {
		logger.Warn("invalid log level specified, using INFO instead")
		parsedLogLevel = zapcore.InfoLevel
	}
	logLevel.SetLevel(parsedLogLevel)

	cfg, err := datasetcfg.Load(applyDatasetsPath)
	if err != nil {
		logger.Error("failed to load datasets configuration", zap.Error(err))
		os.Exit(1)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, err := range errs {
			logger.Error("invalid datasets configuration", zap.Error(err))
		}
		os.Exit(1)
	}

	ctx := context.Background()

	client, err := connectApplyWarehouse(ctx, logger)
	if err != nil {
		logger.Error("failed to connect to the warehouse", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close warehouse client", zap.Error(err))
		}
	}()

	reader := replication.NewCatalogReader(&replication.CatalogReaderOptions{
		Logger: logger.Named("reader"),
		Client: client,
	})
	executor := replication.NewExecutor(&replication.ExecutorOptions{
		Logger: logger.Named("executor"),
		Client: client,
	})
	coordinator := replication.NewCoordinator(&replication.CoordinatorOptions{
		Logger:   logger.Named("coordinator"),
		Reader:   reader,
		Executor: executor,
		Store:    replication.NewSessionStore(),
	})
	provisioner := provision.NewProvisioner(&provision.ProvisionerOptions{
		Logger:      logger.Named("provisioner"),
		Client:      client,
		Reader:      reader,
		Coordinator: coordinator,
	})

	outcomes, err := provisioner.ApplyAll(ctx, cfg, provision.ApplyOptions{
		Concurrency: applyConcurrency,
		DryRun:      applyDryRun,
	})
	if err != nil {
		logger.Error("convergence pass interrupted", zap.Error(err))
		os.Exit(1)
	}

	var failed int
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			failed++
			continue
		}

		if outcome.DryRun != nil {
			ops := make([]string, 0, len(outcome.DryRun.Plan))
			for _, op := range outcome.DryRun.Plan {
				ops = append(ops, fmt.Sprintf("%s %s", op.Kind, op.Location))
			}
			logger.Info("dataset plan",
				zap.String("name", outcome.Name),
				zap.Stringer("dataset", outcome.Identity),
				zap.Bool("wouldCreate", outcome.DryRun.WouldCreate),
				zap.Strings("updateOptions", outcome.DryRun.UpdateOptions),
				zap.Strings("operations", ops))
			continue
		}

		logger.Info("dataset converged",
			zap.String("name", outcome.Name),
			zap.Stringer("dataset", outcome.Identity),
			zap.Bool("created", outcome.Result.CreatedDataset),
			zap.Strings("updatedOptions", outcome.Result.UpdatedOptions))
	}

	logger.Info("convergence pass complete",
		zap.Int("datasets", len(outcomes)),
		zap.Int("failed", failed),
		zap.Bool("dryRun", applyDryRun))

	if failed > 0 {
		os.Exit(1)
	}
}

func connectApplyWarehouse(ctx context.Context, logger *zap.Logger) (warehouse.Client, error) {
	switch applyBackend {
	case gateway.BackendEmulator:
		return emulator.New(logger.Named("emulator"))
	case "", gateway.BackendBigQuery:
		if applyProject == "" {
			return nil, fmt.Errorf("a project id must be configured for the bigquery backend")
		}

		var credentialsJSON []byte
		if applyCredentialsFile != "" {
			data, err := os.ReadFile(applyCredentialsFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read warehouse credentials file: %w", err)
			}
			credentialsJSON = data
		}

		return bigquery.NewClient(ctx, &bigquery.ClientOptions{
			Logger:          logger.Named("bigquery"),
			ProjectID:       applyProject,
			CredentialsJSON: credentialsJSON,
			Endpoint:        applyEndpoint,
		})
	default:
		return nil, fmt.Errorf("unknown warehouse backend %q", applyBackend)
	}
}
