package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" // Register pprof handlers
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/DudeAdrian/Terracare-Ledger-sub000/internal/economy"
	"github.com/DudeAdrian/Terracare-Ledger-sub000/internal/logger"
	"github.com/DudeAdrian/Terracare-Ledger-sub000/internal/metrics"
	"github.com/DudeAdrian/Terracare-Ledger-sub000/internal/postgres"
	"github.com/DudeAdrian/Terracare-Ledger-sub000/internal/server"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr  = "0.0.0.0:8080"
	defaultMetricsAddr = "0.0.0.0:0"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	enablePprofFlag := flag.Bool("enable-pprof", false, "enable pprof server on localhost:6060")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "address to listen on for the HTTP API")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "address to listen on for prometheus metrics")

	postgresDSNFlag := flag.String("postgres-dsn", "", "Postgres DSN for the audit journal; empty disables persistence (or set POSTGRES_DSN env var)")
	runMigrationsFlag := flag.Bool("run-migrations", false, "run Postgres migrations on startup")

	apiTokensFlag := flag.String("api-tokens", "", "comma-separated token:address:role1|role2 entries (or set API_TOKENS env var)")
	userTreasuryFlag := flag.String("user-treasury", "", "user-buyback treasury address (or set USER_TREASURY env var)")
	opsTreasuryFlag := flag.String("ops-treasury", "", "operations treasury address (or set OPS_TREASURY env var)")
	reserveTreasuryFlag := flag.String("reserve-treasury", "", "reserve treasury address (or set RESERVE_TREASURY env var)")

	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 30*time.Second, "maximum time to wait during graceful shutdown")

	flag.Parse()

	log := logger.New(*verboseFlag)

	// Override flags with environment variables if set
	if env := os.Getenv("POSTGRES_DSN"); env != "" {
		*postgresDSNFlag = env
	}
	if env := os.Getenv("API_TOKENS"); env != "" {
		*apiTokensFlag = env
	}
	if env := os.Getenv("USER_TREASURY"); env != "" {
		*userTreasuryFlag = env
	}
	if env := os.Getenv("OPS_TREASURY"); env != "" {
		*opsTreasuryFlag = env
	}
	if env := os.Getenv("RESERVE_TREASURY"); env != "" {
		*reserveTreasuryFlag = env
	}

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			Environment:      os.Getenv("SENTRY_ENVIRONMENT"),
			Release:          version,
			TracesSampleRate: 0.1,
		}); err != nil {
			log.Warn("failed to initialize sentry, continuing without it", "error", err)
		} else {
			defer sentry.Flush(5 * time.Second)
		}
	}

	if *enablePprofFlag {
		go func() {
			log.Info("starting pprof server", "address", "localhost:6060")
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				log.Error("failed to start pprof server", "error", err)
			}
		}()
	}

	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, mux); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tokens, auth, err := parseTokens(*apiTokensFlag)
	if err != nil {
		return err
	}
	treasuries, err := parseTreasuries(*userTreasuryFlag, *opsTreasuryFlag, *reserveTreasuryFlag)
	if err != nil {
		return err
	}

	// The issuer mints under its own service identity.
	minterKey := sha256.Sum256([]byte("terracare-engine/issuer-minter"))
	minter, err := economy.AddressFromBytes(minterKey[:])
	if err != nil {
		return err
	}
	auth.Grant(minter, economy.RoleMinter)

	events := economy.MultiSink{economy.LogSink{Log: log}}

	var journal *postgres.Journal
	if *postgresDSNFlag != "" {
		if *runMigrationsFlag {
			if err := postgres.RunMigrations(log, *postgresDSNFlag); err != nil {
				return err
			}
		}
		pool, err := postgres.Connect(ctx, log, *postgresDSNFlag)
		if err != nil {
			return err
		}
		defer pool.Close()

		journal, err = postgres.NewJournal(postgres.JournalConfig{
			Logger: log,
			Pool:   pool,
		})
		if err != nil {
			return fmt.Errorf("failed to create journal: %w", err)
		}
		events = append(events, journal)
	}

	ledger, err := economy.NewLedger(economy.LedgerConfig{
		Logger:     log,
		Authorizer: auth,
		Events:     events,
	})
	if err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}

	issuer, err := economy.NewIssuer(economy.IssuerConfig{
		Logger:     log,
		Authorizer: auth,
		Events:     events,
		Ledger:     ledger,
		Minter:     minter,
	})
	if err != nil {
		return fmt.Errorf("failed to create issuer: %w", err)
	}

	splitter, err := economy.NewSplitter(economy.SplitterConfig{
		Logger:     log,
		Authorizer: auth,
		Events:     events,
		Ledger:     ledger,
		Payments:   economy.NewMemoryPaymentSink(),
		Treasuries: treasuries,
	})
	if err != nil {
		return fmt.Errorf("failed to create splitter: %w", err)
	}

	srv, err := server.New(server.Config{
		Logger:          log,
		ListenAddr:      *listenAddrFlag,
		Ledger:          ledger,
		Issuer:          issuer,
		Splitter:        splitter,
		Journal:         journal,
		Tokens:          tokens,
		ShutdownTimeout: *shutdownTimeoutFlag,
		VersionInfo: server.VersionInfo{
			Version: version,
			Commit:  commit,
			Date:    date,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	return g.Wait()
}

// parseTokens parses comma-separated token:address:role1|role2 entries into
// the API token table and an authorizer seeded with the role grants.
func parseTokens(spec string) (map[string]server.Principal, *economy.StaticAuthorizer, error) {
	auth := economy.NewStaticAuthorizer()
	tokens := make(map[string]server.Principal)
	if strings.TrimSpace(spec) == "" {
		return nil, nil, fmt.Errorf("--api-tokens is required (token:address:role1|role2,...)")
	}
	for _, entry := range strings.Split(spec, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 3)
		if len(parts) < 2 {
			return nil, nil, fmt.Errorf("invalid api token entry %q", entry)
		}
		addr, err := economy.ParseAddress(parts[1])
		if err != nil {
			return nil, nil, fmt.Errorf("invalid address in api token entry %q: %w", entry, err)
		}
		principal := server.Principal{Address: addr}
		if len(parts) == 3 && parts[2] != "" {
			for _, role := range strings.Split(parts[2], "|") {
				r := economy.Role(strings.TrimSpace(role))
				switch r {
				case economy.RoleOracle, economy.RoleAdmin, economy.RoleDistributor, economy.RoleMinter:
					auth.Grant(addr, r)
					principal.Roles = append(principal.Roles, r)
				default:
					return nil, nil, fmt.Errorf("unknown role %q in api token entry %q", role, entry)
				}
			}
		}
		tokens[parts[0]] = principal
	}
	return tokens, auth, nil
}

func parseTreasuries(user, ops, reserve string) (economy.Treasuries, error) {
	var t economy.Treasuries
	var err error
	if t.UserBuyback, err = economy.ParseAddress(user); err != nil {
		return t, fmt.Errorf("invalid user treasury: %w", err)
	}
	if t.Operations, err = economy.ParseAddress(ops); err != nil {
		return t, fmt.Errorf("invalid operations treasury: %w", err)
	}
	if t.Reserve, err = economy.ParseAddress(reserve); err != nil {
		return t, fmt.Errorf("invalid reserve treasury: %w", err)
	}
	return t, nil
}
