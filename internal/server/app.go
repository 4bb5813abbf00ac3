// Package server wires the auth core together: configuration, the Postgres
// credential store and its migrations, the services, and the HTTP and gRPC
// listeners with graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/trzyszczcms/authcore/internal/cryptox"
	"github.com/trzyszczcms/authcore/internal/logging"
	"github.com/trzyszczcms/authcore/internal/server/config"
	"github.com/trzyszczcms/authcore/internal/server/credstore"
	"github.com/trzyszczcms/authcore/internal/server/httpapi"
	"github.com/trzyszczcms/authcore/internal/server/metrics"
	"github.com/trzyszczcms/authcore/internal/server/repositories/repomanager"
	"github.com/trzyszczcms/authcore/internal/server/services"
	"google.golang.org/grpc"

	gs "github.com/trzyszczcms/authcore/internal/server/grpc"
)

const (
	tokenPurgeInterval = time.Hour
	startupTimeout     = 30 * time.Second
	shutdownTimeout    = 10 * time.Second
)

// credentialStore is the full store surface the services need.
type credentialStore interface {
	credstore.Store
	credstore.Admin
}

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	repo        repomanager.RepositoryManager
	metrics     *metrics.Metrics
	authService *services.AuthService
	userService *services.UserService
	grpcServer  *gs.GRPCServer
	httpMounts  []func(chi.Router)
}

func NewApp(c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, "authcore"),
	)
	m := metrics.New(registry)

	repo := repomanager.NewPostgresRepositoryManager()
	store := credstore.NewPostgresStore(db, repo)

	as, us, err := buildServices(store, c, logger, m)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &App{
		config:      c,
		logger:      logger,
		db:          db,
		repo:        repo,
		metrics:     m,
		authService: as,
		userService: us,
		grpcServer:  gs.NewGRPCServer(c.EndpointAddrGRPC, logger, as),
	}, nil
}

func buildServices(store credentialStore, c *config.Config, logger logging.Logger, rec metrics.Recorder) (*services.AuthService, *services.UserService, error) {
	hasher, err := cryptox.NewPasswordHasher(c.Argon2Params())
	if err != nil {
		return nil, nil, fmt.Errorf("password hasher: %w", err)
	}

	deps := services.Deps{
		Hasher:  hasher,
		Tokens:  cryptox.NewTokenCodec(),
		Logger:  logger,
		Metrics: rec,
	}

	as, err := services.NewAuthService(store, deps, c)
	if err != nil {
		return nil, nil, fmt.Errorf("auth service: %w", err)
	}

	return as, services.NewUserService(store, deps), nil
}

// RegisterGRPC lets a collaborator add its services to the gRPC listener.
// It must be called before Run.
func (app *App) RegisterGRPC(register func(*grpc.Server), policies map[string]string) {
	app.grpcServer.Register(register, policies)
}

// MountHTTP adds routes to the authenticated HTTP group. It must be called
// before Run.
func (app *App) MountHTTP(mount func(chi.Router)) {
	app.httpMounts = append(app.httpMounts, mount)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// prepare migrates the schema and seeds the first administrator.
func (app *App) prepare(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	if err := app.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}

	if err := app.repo.RunMigrations(ctx, app.db); err != nil {
		return err
	}

	if err := seedAdmin(ctx, app.userService, os.Stderr); err != nil {
		return err
	}

	return nil
}

// seedAdmin creates the first administrator on an empty store and prints
// its password to w, outside the structured log stream.
func seedAdmin(ctx context.Context, us *services.UserService, w io.Writer) error {
	password, err := us.SeedAdmin(ctx)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if password == "" {
		return nil
	}
	_, err = fmt.Fprintf(w, "Created user %q with password %s\nChange it with: authctl passwd %s\n",
		services.AdminUserName, password, services.AdminUserName)
	return err
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	h := httpapi.NewHandler(app.authService, app.logger, app.metrics, app.db)
	srv := &http.Server{
		Addr:              app.config.EndpointAddrHTTP,
		Handler:           httpapi.NewRouter(h, app.httpMounts...),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", srv.Addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.grpcServer.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is canceled or a termination signal arrives.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	defer func() {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "db close", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting app...")

	if err := app.prepare(ctx); err != nil {
		return err
	}

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.userService.RunTokenJanitor(ctx, tokenPurgeInterval)
	}()

	wg.Wait()

	app.logger.Info(context.Background(), "App stopped")
	return nil
}
