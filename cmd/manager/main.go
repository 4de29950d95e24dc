package main

import (
	"context"
	"flag"
	"os"
	"strings"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	x402v1alpha1 "github.com/razvanmacovei/x402-crawl-gateway/api/v1alpha1"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/audit"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/config"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/controller"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/fetcher"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/gateway"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/license"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/postgres"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/pricing"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/replay"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/routestore"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/verifier"
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(x402v1alpha1.AddToScheme(scheme))
}

// stores are the persistence backends shared by the verifier, the license
// gate and the audit pipeline.
type stores struct {
	claims   replay.Store
	audit    audit.Store
	tokens   verifier.TokenLookup
	licenses license.Lookup
	close    func()
}

func main() {
	var metricsAddr string
	var probeAddr string
	var gatewayAddr string
	var configPath string
	var enableLeaderElection bool
	var operatorNamespace string
	var operatorSvcName string

	flag.StringVar(&metricsAddr, "metrics-bind-address", ":8080", "The address the metrics endpoint binds to.")
	flag.StringVar(&probeAddr, "health-probe-bind-address", ":8081", "The address the probe endpoint binds to.")
	flag.StringVar(&gatewayAddr, "gateway-bind-address", ":8402", "The address the gateway binds to.")
	flag.StringVar(&configPath, "gateway-config", os.Getenv("X402_CONFIG"), "Path to the gateway YAML configuration.")
	flag.BoolVar(&enableLeaderElection, "leader-elect", false, "Enable leader election for controller manager.")
	flag.StringVar(&operatorNamespace, "operator-namespace", envOrDefault("POD_NAMESPACE", "x402-system"), "Namespace where the gateway runs.")
	flag.StringVar(&operatorSvcName, "operator-service-name", envOrDefault("OPERATOR_SERVICE_NAME", "x402-crawl-gateway"), "Service name of the gateway.")

	opts := zap.Options{}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	cfg, err := config.Load(configPath)
	if err != nil {
		setupLog.Error(err, "unable to load gateway configuration")
		os.Exit(1)
	}

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsserver.Options{BindAddress: metricsAddr},
		HealthProbeBindAddress: probeAddr,
		LeaderElection:         enableLeaderElection,
		LeaderElectionID:       "x402-crawl-gateway.x402.io",
	})
	if err != nil {
		setupLog.Error(err, "unable to start manager")
		os.Exit(1)
	}

	ctx := ctrl.SetupSignalHandler()

	st, err := openStores(ctx, cfg)
	if err != nil {
		setupLog.Error(err, "unable to open stores")
		os.Exit(1)
	}
	defer st.close()

	if cfg.License.Source == "kube" {
		if err := mgr.GetFieldIndexer().IndexField(ctx, &x402v1alpha1.PublisherLicense{}, license.OwnerField, license.OwnerIndex); err != nil {
			setupLog.Error(err, "unable to index PublisherLicense owners")
			os.Exit(1)
		}
		st.licenses = license.NewKubeLookup(mgr.GetClient())
	}

	store := routestore.New()

	if err = (&controller.X402RouteReconciler{
		Client:            mgr.GetClient(),
		Scheme:            mgr.GetScheme(),
		RouteStore:        store,
		OperatorNamespace: operatorNamespace,
		OperatorSvcName:   operatorSvcName,
	}).SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "X402Route")
		os.Exit(1)
	}

	var sinks []audit.Sink
	if st.audit != nil {
		sinks = append(sinks, st.audit)
	}
	if cfg.Audit.LogRecords || st.audit == nil {
		sinks = append(sinks, audit.LogSink{Log: ctrl.Log.WithName("audit").WithName("records")})
	}
	auditLog := audit.NewLogger(ctrl.Log.WithName("audit"), audit.Options{
		QueueSize:    cfg.Audit.QueueSize,
		Workers:      cfg.Audit.Workers,
		WriteTimeout: cfg.AuditWriteTimeout,
	}, sinks...)
	if err := mgr.Add(auditLog); err != nil {
		setupLog.Error(err, "unable to add audit logger to manager")
		os.Exit(1)
	}

	if len(cfg.Ledger.Brokers) > 0 {
		ledger, err := audit.DialKafkaLedger(cfg.Ledger.Brokers, cfg.Ledger.Topic)
		if err != nil {
			setupLog.Error(err, "unable to connect to the ledger", "brokers", strings.Join(cfg.Ledger.Brokers, ","))
			os.Exit(1)
		}
		defer ledger.Close()
		if err := mgr.Add(&audit.Reconciler{
			Store:     st.audit,
			Ledger:    ledger,
			BatchSize: cfg.Ledger.BatchSize,
			Interval:  cfg.SweepInterval,
			Log:       ctrl.Log.WithName("ledger"),
		}); err != nil {
			setupLog.Error(err, "unable to add ledger reconciler to manager")
			os.Exit(1)
		}
	}

	handler := gateway.NewHandler(gateway.Options{
		Routes: store,
		Policy: &pricing.Policy{
			Funcs:        cfg.Prices(),
			DefaultPrice: cfg.Pricing.DefaultPrice,
			Timeout:      cfg.Pricing.TimeoutSeconds,
		},
		Verifier:     newVerifier(cfg, st),
		VerifierName: string(cfg.Mode),
		License:      license.NewGate(st.licenses, cfg.License.AllowUnknown),
		Fetcher: fetcher.New(fetcher.Options{
			UserAgent:    cfg.Fetcher.UserAgent,
			Timeout:      cfg.FetchTimeout,
			MaxBodyBytes: cfg.Fetcher.MaxBodyBytes,
		}),
		Audit:          auditLog,
		BaseURL:        cfg.PublicBaseURL,
		MaxRequestBody: cfg.MaxRequestBody,
		Log:            ctrl.Log.WithName("gateway"),
	})
	if err := mgr.Add(gateway.NewServer(gatewayAddr, handler, ctrl.Log.WithName("gateway"))); err != nil {
		setupLog.Error(err, "unable to add gateway server to manager")
		os.Exit(1)
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up health check")
		os.Exit(1)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up ready check")
		os.Exit(1)
	}

	setupLog.Info("starting manager",
		"metrics", metricsAddr,
		"probes", probeAddr,
		"gateway", gatewayAddr,
		"environment", cfg.Environment,
		"verifierMode", cfg.Mode,
		"licenseSource", cfg.License.Source,
		"operatorNamespace", operatorNamespace,
		"operatorSvcName", operatorSvcName,
	)
	if err := mgr.Start(ctx); err != nil {
		setupLog.Error(err, "problem running manager")
		os.Exit(1)
	}
}

// openStores connects to Postgres when a database is configured. Without one,
// claims live in process and audit records only reach the log, since the
// ledger needs a shared store to sweep.
func openStores(ctx context.Context, cfg *config.Parsed) (*stores, error) {
	st := &stores{close: func() {}}
	if cfg.License.Source == "static" {
		st.licenses = staticLicenses(cfg.License.Active)
	}

	if cfg.Database.URL == "" {
		setupLog.Info("no database configured, claims are kept in memory and audit records are only logged")
		st.claims = replay.NewMemory()
		return st, nil
	}

	pool, err := postgres.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	st.close = pool.Close
	st.claims = postgres.NewClaimStore(pool)
	st.audit = postgres.NewAuditStore(pool)
	st.tokens = postgres.NewTokenStore(pool)
	if cfg.License.Source == "postgres" {
		st.licenses = postgres.NewLicenseStore(pool)
	}
	return st, nil
}

func staticLicenses(owners []string) license.Static {
	s := make(license.Static, len(owners))
	for _, o := range owners {
		s[license.NormalizeOwner(o)] = license.License{Owner: o, Active: true}
	}
	return s
}

func newVerifier(cfg *config.Parsed, st *stores) verifier.Verifier {
	allow := func() verifier.Verifier {
		return verifier.NewAllowList(cfg.Verifier.Tokens, st.tokens, st.claims)
	}
	settle := func() verifier.Verifier {
		var auth verifier.AuthProvider
		if cfg.Verifier.CDP.KeyID != "" {
			auth = verifier.CDPAuth{KeyID: cfg.Verifier.CDP.KeyID, KeySecret: cfg.Verifier.CDP.KeySecret}
		}
		return verifier.NewSettlement(verifier.SettlementOptions{
			FacilitatorURL: cfg.Verifier.FacilitatorURL,
			Timeout:        cfg.VerifierTimeout,
			Auth:           auth,
		}, st.claims)
	}

	switch cfg.Mode {
	case verifier.ModeAllowList:
		setupLog.Info("allow-list verification accepts tokens without binding them to an amount or recipient")
		return allow()
	case verifier.ModeHybrid:
		return &verifier.Dispatch{Tokens: allow(), Payments: settle()}
	default:
		return settle()
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
