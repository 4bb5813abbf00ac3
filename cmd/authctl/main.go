package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/trzyszczcms/authcore/internal/authctl"
	"github.com/trzyszczcms/authcore/internal/cryptox"
	"github.com/trzyszczcms/authcore/internal/logging"
	"github.com/trzyszczcms/authcore/internal/server/config"
	"github.com/trzyszczcms/authcore/internal/server/credstore"
	"github.com/trzyszczcms/authcore/internal/server/repositories/repomanager"
	"github.com/trzyszczcms/authcore/internal/server/services"
)

func main() {
	global, command := authctl.SplitArgs(os.Args[1:])

	cfg, err := config.Load(global)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, command); err != nil {
		if errors.Is(err, authctl.ErrUsage) {
			log.Print(err)
			os.Exit(2)
		}
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, command []string) error {
	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := repomanager.NewPostgresRepositoryManager()
	if err := repo.RunMigrations(ctx, db); err != nil {
		return err
	}

	hasher, err := cryptox.NewPasswordHasher(cfg.Argon2Params())
	if err != nil {
		return err
	}

	us := services.NewUserService(credstore.NewPostgresStore(db, repo), services.Deps{
		Hasher: hasher,
		Tokens: cryptox.NewTokenCodec(),
		Logger: logging.NewJSONLogger(os.Stderr, cfg.LogLevel),
	})

	return authctl.NewApp(us, os.Stdout).Run(ctx, command)
}
