package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	clientv3 "go.etcd.io/etcd/client/v3"
	"golang.org/x/sync/errgroup"

	"github.com/redis/go-redis/v9"
	"github.com/terminal-bench/energychain/internal/alerts"
	"github.com/terminal-bench/energychain/internal/audit"
	"github.com/terminal-bench/energychain/internal/auth"
	"github.com/terminal-bench/energychain/internal/chain"
	"github.com/terminal-bench/energychain/internal/config"
	"github.com/terminal-bench/energychain/internal/consumers"
	"github.com/terminal-bench/energychain/internal/gateway"
	"github.com/terminal-bench/energychain/internal/rates"
	"github.com/terminal-bench/energychain/internal/snapshots"
	"github.com/terminal-bench/energychain/internal/telemetry"
	"github.com/terminal-bench/energychain/pkg/messaging"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "energyd",
		Short: "Energy supply chain ledger daemon",
		Long:  "Runs the supply chain ledger with its HTTP gateway, event bus, and metering loop",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(setRateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)
	return log
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the ledger daemon",
		Long:  "Start the supply chain ledger, HTTP gateway, audit archiver, and metering loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log := newLogger(cfg.Logging)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, err := sql.Open("postgres", cfg.Postgres.DSN)
			if err != nil {
				return fmt.Errorf("failed to open postgres: %w", err)
			}
			defer db.Close()

			bus, err := newBus(cfg.NATS)
			if err != nil {
				return fmt.Errorf("failed to connect to nats: %w", err)
			}
			defer bus.Close()

			rateSource, closeRates, err := newRateSource(ctx, cfg.Etcd, log)
			if err != nil {
				return fmt.Errorf("failed to set up rate source: %w", err)
			}
			defer closeRates()

			ledger := chain.New(chain.Config{
				Rates:     rateSource,
				Publisher: bus,
				Logger:    log,
			})

			var cache *snapshots.Cache
			if cfg.Redis.Enabled {
				rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
				defer rdb.Close()
				cache = snapshots.NewCache(rdb, cfg.Redis.TTL, log)
				if err := cache.StartInvalidator(ctx, bus); err != nil {
					return fmt.Errorf("failed to start cache invalidator: %w", err)
				}
			}

			accounts := auth.NewService(db, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

			archiver := audit.NewArchiver(db, log)
			if err := archiver.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("failed to prepare audit schema: %w", err)
			}
			if err := archiver.Start(ctx, bus); err != nil {
				return fmt.Errorf("failed to start audit archiver: %w", err)
			}

			if cfg.Influx.Enabled {
				recorder := telemetry.NewRecorder(telemetry.Config{
					URL:    cfg.Influx.URL,
					Token:  cfg.Influx.Token,
					Org:    cfg.Influx.Org,
					Bucket: cfg.Influx.Bucket,
				}, log)
				defer recorder.Close()
				if err := recorder.Start(bus); err != nil {
					return fmt.Errorf("failed to start telemetry recorder: %w", err)
				}
			}

			if cfg.Alerts.Enabled {
				threshold, err := decimal.NewFromString(cfg.Alerts.Threshold)
				if err != nil {
					return fmt.Errorf("invalid alert threshold %q: %w", cfg.Alerts.Threshold, err)
				}
				watcher := alerts.NewWatcher(ledger, bus, threshold, log)
				if err := watcher.Start(ctx, bus); err != nil {
					return fmt.Errorf("failed to start alert watcher: %w", err)
				}
			}

			gw := gateway.New(gateway.Config{
				RateLimitMax:    cfg.RateLimit.Max,
				RateLimitWindow: cfg.RateLimit.Window,
			}, ledger, accounts, cache, log)
			if err := gw.StartEventStream(bus); err != nil {
				return fmt.Errorf("failed to start event stream: %w", err)
			}

			server := &http.Server{
				Addr:    cfg.Server.Addr,
				Handler: gw.Router(),
			}

			group, ctx := errgroup.WithContext(ctx)
			group.Go(func() error {
				log.WithField("addr", cfg.Server.Addr).Info("gateway listening")
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			})
			group.Go(func() error {
				ticker := time.NewTicker(cfg.Metering.TickInterval)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						settled := ledger.Tick(ctx)
						if len(settled) > 0 {
							log.WithField("settled", len(settled)).Debug("metering pass complete")
						}
					case <-ctx.Done():
						return nil
					}
				}
			})
			group.Go(func() error {
				<-ctx.Done()
				log.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})

			return group.Wait()
		},
	}
}

func setRateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-rate <distributor-id> <rate>",
		Short: "Set a distributor's consumption rate",
		Long:  "Write a per-second consumption rate for a distributor into etcd; running daemons pick it up live",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log := newLogger(cfg.Logging)

			distributorID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid distributor id %q: %w", args[0], err)
			}
			rate, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid rate %q: %w", args[1], err)
			}

			cli, err := clientv3.New(clientv3.Config{
				Endpoints:   cfg.Etcd.Endpoints,
				DialTimeout: cfg.Etcd.DialTimeout,
			})
			if err != nil {
				return fmt.Errorf("failed to connect to etcd: %w", err)
			}
			defer cli.Close()

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Etcd.DialTimeout)
			defer cancel()

			provider, err := rates.NewProvider(ctx, cli, decimal.Zero, log)
			if err != nil {
				return fmt.Errorf("failed to create rate provider: %w", err)
			}
			if err := provider.SetRate(ctx, distributorID, rate); err != nil {
				return fmt.Errorf("failed to set rate: %w", err)
			}

			fmt.Printf("rate for distributor %d set to %s\n", distributorID, rate.String())
			return nil
		},
	}
}

func newBus(cfg config.NATSConfig) (*messaging.Client, error) {
	return messaging.NewClient(messaging.Config{
		URL:            cfg.URL,
		Name:           cfg.Name,
		ReconnectWait:  cfg.ReconnectWait,
		MaxReconnects:  cfg.MaxReconnects,
		ConnectTimeout: cfg.ConnectTimeout,
	})
}

func newRateSource(ctx context.Context, cfg config.EtcdConfig, log *logrus.Logger) (consumers.RateSource, func(), error) {
	defaultRate, err := decimal.NewFromString(cfg.DefaultRate)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid default rate %q: %w", cfg.DefaultRate, err)
	}
	if !cfg.Enabled {
		return consumers.StaticRate{Rate: defaultRate}, func() {}, nil
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	provider, err := rates.NewProvider(ctx, cli, defaultRate, log)
	if err != nil {
		cli.Close()
		return nil, nil, err
	}
	return provider, func() { cli.Close() }, nil
}
