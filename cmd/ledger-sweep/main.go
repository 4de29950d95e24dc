// Command ledger-sweep copies audit records the database holds but the
// ledger has not confirmed, then exits. It is meant for CronJobs and manual
// recovery after a broker outage.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/razvanmacovei/x402-crawl-gateway/internal/audit"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/config"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/postgres"
)

func main() {
	var configPath string
	var timeout time.Duration
	flag.StringVar(&configPath, "gateway-config", os.Getenv("X402_CONFIG"), "Path to the gateway YAML configuration.")
	flag.DurationVar(&timeout, "timeout", 10*time.Minute, "Upper bound for the whole sweep.")

	opts := zap.Options{}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()
	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))
	log := ctrl.Log.WithName("ledger-sweep")

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error(err, "unable to load gateway configuration")
		os.Exit(1)
	}
	if cfg.Database.URL == "" || len(cfg.Ledger.Brokers) == 0 {
		log.Info("nothing to sweep: database.url and ledger.brokers are both required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := run(ctx, cfg, &audit.Reconciler{BatchSize: cfg.Ledger.BatchSize, Log: log}); err != nil {
		log.Error(err, "sweep failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Parsed, r *audit.Reconciler) error {
	pool, err := postgres.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	ledger, err := audit.DialKafkaLedger(cfg.Ledger.Brokers, cfg.Ledger.Topic)
	if err != nil {
		return err
	}
	defer ledger.Close()

	r.Store = postgres.NewAuditStore(pool)
	r.Ledger = ledger
	n, err := r.Sweep(ctx)
	r.Log.Info("sweep finished", "confirmed", n, "topic", cfg.Ledger.Topic)
	return err
}
