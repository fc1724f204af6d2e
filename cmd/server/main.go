package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/klash/wager-engine/internal/config"
	"github.com/klash/wager-engine/internal/ledger"
	"github.com/klash/wager-engine/internal/limits"
	"github.com/klash/wager-engine/internal/metrics"
	"github.com/klash/wager-engine/internal/model"
	"github.com/klash/wager-engine/internal/outcome"
	"github.com/klash/wager-engine/internal/resolver"
	"github.com/klash/wager-engine/internal/session"
	"github.com/klash/wager-engine/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Settlement ledger ---
	signer, err := ledger.NewSigner(cfg.Ledger.PrivateKey)
	if err != nil {
		slog.Error("signer setup failed", "err", err)
		os.Exit(1)
	}
	deployer := signer.Address()

	moduleAddr := deployer
	if cfg.Ledger.ModuleAddress != "" {
		moduleAddr, err = ledger.AddressFromHex(cfg.Ledger.ModuleAddress)
		if err != nil {
			slog.Error("invalid module address", "err", err)
			os.Exit(1)
		}
	}
	ledgerClient := ledger.NewNodeClient(cfg.Ledger.NodeURL, signer, moduleAddr)
	slog.Info("ledger client ready", "node", cfg.Ledger.NodeURL, "deployer", deployer.Hex())

	// --- Store ---
	var st store.Store
	var locker session.Locker = session.NewKeyedLock()
	var cleanup []func()

	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Redis adds a read-through cache and a cross-instance join lock.
		if cfg.Redis.URL != "" {
			opt, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				slog.Error("invalid redis URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.Redis.CacheTTL)
			locker = store.NewRedisLocker(rdb, cfg.Redis.LockTTL)
			slog.Info("redis cache and distributed lock enabled")
		}
	} else {
		slog.Warn("database url not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	if err := seedMarkets(ctx, st); err != nil {
		slog.Error("market seeding failed", "err", err)
		os.Exit(1)
	}

	// --- Core services ---
	limiter := limits.NewStakeLimiter(
		decimal.NewFromFloat(cfg.Limits.MaxStakePerJoin),
		decimal.NewFromFloat(cfg.Limits.MaxStakePerWallet),
	)

	hub := session.NewHub()
	go hub.Run()

	orc := session.NewOrchestrator(st, ledgerClient, deployer, locker, limiter, hub)
	handlers := session.NewHandlers(orc)

	sched := resolver.NewScheduler(st, ledgerClient, outcome.NewRandomDecider(), deployer,
		decimal.NewFromFloat(cfg.Resolver.FeeRate), cfg.Resolver.Interval, hub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"wager-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time lifecycle events.
		r.Get("/ws", hub.HandleWS)

		r.Get("/markets", handlers.ListMarkets)
		r.Post("/markets", handlers.CreateMarket)
		r.Get("/markets/{marketID}", handlers.GetMarket)
		r.Post("/markets/{marketID}/join", handlers.JoinMarket)

		r.Get("/portfolio/{wallet}", handlers.GetPortfolio)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("wager-engine listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := sched.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down wager-engine...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("wager-engine stopped with error", "err", err)
		os.Exit(1)
	}
	slog.Info("wager-engine stopped")
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// seedMarkets provisions the launch markets on an empty store.
func seedMarkets(ctx context.Context, st store.Store) error {
	existing, err := st.ListMarkets(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	slog.Info("seeding initial markets")
	seeds := []model.Market{
		{
			Title:       "Will Bitcoin hit $200K by end of 2025?",
			Description: "A high-stakes prediction on Bitcoin's meteoric rise.",
			SideA:       "Yes, $200K+",
			SideB:       "No way",
			Category:    "Crypto",
		},
		{
			Title:       "Elon Musk vs Mark Zuckerberg cage match",
			Description: "The tech billionaire showdown.",
			SideA:       "Fight happens in 2025",
			SideB:       "Never happening",
			Category:    "Entertainment",
		},
		{
			Title:       "GPT-5 releases before July 2025",
			Description: "OpenAI's next frontier model.",
			SideA:       "Released before July",
			SideB:       "Delayed past July",
			Category:    "Tech",
		},
		{
			Title:       "Lakers win 2025 NBA Championship",
			Description: "Can LeBron secure another ring?",
			SideA:       "Lakers win it all",
			SideB:       "Someone else takes it",
			Category:    "Sports",
		},
		{
			Title:       "Tesla Robotaxi launches commercially in 2025",
			Description: "Is 2025 finally the year?",
			SideA:       "Launches in 2025",
			SideB:       "Another delay",
			Category:    "Tech",
		},
		{
			Title:       "Will there be a US recession in 2025?",
			Description: "Economic indicators are mixed.",
			SideA:       "Recession hits",
			SideB:       "Economy stays strong",
			Category:    "Finance",
		},
	}

	now := time.Now().UTC()
	for i, seed := range seeds {
		seed.ID = uuid.New().String()
		seed.Mode = model.ModeTwoPlayer
		seed.Status = model.StatusOpen
		// Preserve listing order under newest-first sorting.
		seed.CreatedAt = now.Add(time.Duration(-i) * time.Second)
		seed.UpdatedAt = seed.CreatedAt
		if err := st.CreateMarket(ctx, &seed); err != nil {
			return err
		}
	}
	slog.Info("seeding complete", "markets", len(seeds))
	return nil
}
