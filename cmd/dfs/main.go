package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dfs/pkg/catalog"
	"dfs/pkg/config"
	"dfs/pkg/ledger"
	"dfs/pkg/metrics"
	"dfs/pkg/storage"
	"dfs/pkg/types"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dfs",
		Short: "Decentralized content-addressed storage network",
		Long: `A decentralized storage network where files are chunked, replicated across
scored storage nodes under escrowed contracts, and protected by per-file
encryption with groups and temporary access grants.`,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(
		serveCmd(),
		demoCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadConfig(configFile)
	}
	return config.LoadFromEnv(), nil
}

func serveCmd() *cobra.Command {
	var (
		dataDir     string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the storage network with disk-backed chunks",
		Long:  `Start the catalog with a disk chunk store, the background sweep loop, and a Prometheus metrics endpoint.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			defer logger.Sync()

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			m := metrics.New()
			backend := storage.NewDiskBackend(dataDir, logger)
			cat, err := catalog.New(cfg, ledger.NewMemoryLedger(), backend, clock.New(), logger, m)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			cat.Start(ctx)
			defer cat.Stop()

			mux := http.NewServeMux()
			mux.Handle("/metrics", m.Handler())
			server := &http.Server{Addr: metricsAddr, Handler: mux}
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("metrics server failed", zap.Error(err))
				}
			}()
			logger.Info("storage network running",
				zap.String("data_dir", dataDir),
				zap.String("metrics_addr", metricsAddr))

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			logger.Info("shutting down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVarP(&dataDir, "data-dir", "d", "/var/lib/dfs", "chunk storage directory")
	cmd.Flags().StringVarP(&metricsAddr, "metrics-addr", "m", ":9090", "metrics listen address")
	return cmd
}

func demoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run an end-to-end demo against in-memory storage",
		Long:  `Store, share, and retrieve a file across simulated storage nodes, then settle the contracts and show earnings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			defer logger.Sync()

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			bank := ledger.NewMemoryLedger()
			cat, err := catalog.New(cfg, bank, storage.NewMemoryBackend(), clock.New(), logger, metrics.New())
			if err != nil {
				return err
			}

			for i := 0; i < 5; i++ {
				cat.AddStorageNodeMetrics(types.StorageNodeMetrics{
					NodeID:            types.NodeID(fmt.Sprintf("demo-node-%d", i)),
					TotalStorage:      uint64(100+10*i) * 1024 * 1024 * 1024,
					AvailableStorage:  uint64(80+10*i) * 1024 * 1024 * 1024,
					Reliability:       0.85 + 0.03*float64(i),
					AvgResponse:       time.Duration(20+15*i) * time.Millisecond,
					BandwidthCapacity: 1000,
					LastHeartbeat:     time.Now(),
					Region:            "demo",
				})
			}
			bank.Mint("alice", 10_000)

			ctx := context.Background()
			record, err := cat.Store(ctx, catalog.StoreRequest{
				Owner:       "alice",
				Filename:    "quarterly-report.txt",
				ContentType: "text/plain",
				Data:        []byte("The decentralized quarterly numbers look excellent.\n"),
				Permissions: types.OwnerOnly{},
				Duration:    720 * time.Hour,
				Tags:        []string{"demo", "report"},
			})
			if err != nil {
				return err
			}
			fmt.Println(renderStored(record))

			if err := cat.GrantTemporaryAccess(record.FileHash, "bob", types.AccessTrial, time.Hour, "alice", 3); err != nil {
				return err
			}
			if _, err := cat.Retrieve(ctx, record.FileHash, "bob"); err != nil {
				return err
			}
			if _, err := cat.Retrieve(ctx, record.FileHash, "alice"); err != nil {
				return err
			}

			distributed := cat.ForceCompleteStorageContracts(ctx)
			fmt.Println(renderStatistics(cat.GetStatistics()))
			fmt.Println(renderEarnings(cat.GetNodeEarningsReport()))
			fmt.Println(renderRewards(cat.GetRewardsDistributionStats(), distributed))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("DFS Storage Network v0.1.0")
		},
	}
}

func setupLogger(verbose bool) *zap.Logger {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, _ := config.Build()
	return logger
}
