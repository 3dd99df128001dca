package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-account/internal/mail"
	"github.com/ovaphlow/pitchfork/service-account/internal/migrations"
	"github.com/ovaphlow/pitchfork/service-account/internal/router"
	"github.com/ovaphlow/pitchfork/service-account/internal/user"
	"github.com/ovaphlow/pitchfork/service-account/pkg/database"
	"github.com/ovaphlow/pitchfork/service-account/pkg/utilities"
)

type serverConfig struct {
	Addr          string `env:"HTTP_ADDR" envDefault:"0.0.0.0:8431"`
	SnowflakeNode int64  `env:"SNOWFLAKE_NODE" envDefault:"1"`
	BcryptCost    int    `env:"BCRYPT_COST" envDefault:"12"`
}

func main() {
	// load .env file if present so os.Getenv picks values from it
	// this is best-effort: if no .env exists, continue (use defaults or real env)
	_ = godotenv.Load()

	// init logger
	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-account")

	var srvCfg serverConfig
	if err := env.Parse(&srvCfg); err != nil {
		sugar.Fatalf("server config: %v", err)
	}

	// init db
	cfg, err := database.ConfigFromEnv()
	if err != nil {
		sugar.Fatalf("database config: %v", err)
	}
	sqlDB, err := database.Connect(cfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer sqlDB.Close()

	if cfg.AutoMigrate {
		if err := migrations.Up(context.Background(), sqlDB); err != nil {
			sugar.Fatalf("migrate: %v", err)
		}
		sugar.Info("migrations applied")
	}

	// wrap with sqlx for convenience in repos/services
	sqlxDB := sqlx.NewDb(sqlDB, "postgres")

	mailCfg, err := mail.ConfigFromEnv()
	if err != nil {
		sugar.Fatalf("mail config: %v", err)
	}
	mailer, err := mail.NewSMTPMailer(mailCfg)
	if err != nil {
		sugar.Fatalf("mail setup: %v", err)
	}
	if mailer.Disabled() {
		sugar.Warn("SMTP not configured; outgoing mail is dropped")
	}

	ids, err := utilities.NewSnowflakeGenerator(srvCfg.SnowflakeNode)
	if err != nil {
		sugar.Fatalf("id generator: %v", err)
	}
	svc, err := user.NewUserService(sqlxDB, user.BcryptHasher{Cost: srvCfg.BcryptCost}, ids, mailer, sugar.Named("user"))
	if err != nil {
		sugar.Fatalf("user service: %v", err)
	}

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// mount http server
	handler := router.RegisterRoutes(sugar, sqlxDB, user.NewHandler(svc, sugar.Named("http")))
	srv := &http.Server{
		Addr:              srvCfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// run server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Infow("service is running; press Ctrl+C to stop", "addr", srvCfg.Addr)

	<-ctx.Done()

	sugar.Info("shutting down")

	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// shutdown http server
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
