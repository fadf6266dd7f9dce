package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trailsbuddy.com/quiz-contest/internal/clock"
	"trailsbuddy.com/quiz-contest/internal/config"
	"trailsbuddy.com/quiz-contest/internal/contest"
	"trailsbuddy.com/quiz-contest/internal/finalize"
	"trailsbuddy.com/quiz-contest/internal/handlers"
	"trailsbuddy.com/quiz-contest/internal/ledger"
	"trailsbuddy.com/quiz-contest/internal/logger"
	"trailsbuddy.com/quiz-contest/internal/metrics"
	"trailsbuddy.com/quiz-contest/internal/notify"
	"trailsbuddy.com/quiz-contest/internal/questionbank"
	"trailsbuddy.com/quiz-contest/internal/repository"
	"trailsbuddy.com/quiz-contest/internal/scheduler"
	"trailsbuddy.com/quiz-contest/internal/seed"
	"trailsbuddy.com/quiz-contest/internal/session"
	"trailsbuddy.com/quiz-contest/internal/store"
	"trailsbuddy.com/quiz-contest/internal/validation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("quiz-contest", "info").WithError(err).Fatal("Failed to load config")
	}
	log := logger.New("quiz-contest", cfg.Log.Level)

	// 1) DB
	db, err := store.Open(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to open database")
	}
	if err := store.AutoMigrate(db); err != nil {
		log.WithError(err).Fatal("Failed to migrate database")
	}
	clk := clock.System()

	// 2) Seed (if empty)
	if isEmpty, _ := store.IsContestTableEmpty(db); isEmpty && cfg.Seed.Path != "" {
		if _, err := os.Stat(cfg.Seed.Path); err == nil {
			n, err := seed.FromJSON(db, clk, cfg.Seed.Path)
			if err != nil {
				log.WithError(err).Fatal("Failed to seed contests")
			}
			log.Entry().WithField("path", cfg.Seed.Path).WithField("contests", n).Info("Seeded contests")
		} else {
			log.Entry().WithField("path", cfg.Seed.Path).Info("No seed file; running with empty DB")
		}
	}

	// 3) Services
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	v := validation.New()
	bank := questionbank.NewService(db, clk, log, v)
	led := ledger.NewService(db, clk, log, m, ledger.Options{
		WithdrawMinAmount: cfg.Wallet.WithdrawMinAmount,
		AppUpiID:          cfg.Payments.AppUpiID,
	})
	if cfg.Payments.AppUpiID == "" {
		log.Entry().Warn("payments.app_upi_id is not set; addBalanceInit will fail")
	}

	var notifier notify.Notifier
	if cfg.Redis.URL != "" {
		notifier, err = notify.NewRedisNotifier(ctx, cfg.Redis.URL, cfg.Redis.Channel)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to Redis")
		}
	} else {
		notifier = notify.NewLogNotifier(log)
	}
	defer notifier.Close()

	engine := finalize.NewEngine(db, led, notifier, clk, log, m, finalize.Options{
		BatchSize:   cfg.Finalize.BatchSize,
		Concurrency: cfg.Finalize.Concurrency,
	})
	sched := scheduler.New(log, scheduler.Job{
		Name:     "finalize-contests",
		Interval: cfg.Scheduler.FinalizeInterval,
		Run: func(ctx context.Context) error {
			_, err := engine.FinalizeDue(ctx)
			return err
		},
	})

	// 4) Router
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware(log), metrics.GinMiddleware(m))
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			for _, o := range cfg.Server.AllowedOrigins {
				if o == origin {
					return true
				}
			}
			// allow any http://localhost:PORT during development
			return strings.HasPrefix(origin, "http://localhost:")
		},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", handlers.UserHeader},
		AllowCredentials: cfg.Server.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.Register(r, &handlers.Deps{
		Sessions:  session.NewManager(db, bank, clk, log, m),
		Ledger:    led,
		Contests:  contest.NewService(db, clk, log, v),
		Questions: bank,
		Users:     repository.NewUserRepository(db),
		Clock:     clk,
		Log:       log,
	})

	// 5) Server
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Entry().WithField("addr", srv.Addr).Info("Listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()
	sched.Start(ctx)

	<-ctx.Done()
	log.Entry().Info("Shutting down server...")

	sched.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
	engine.Wait()
	log.Entry().Info("Server stopped")
}
