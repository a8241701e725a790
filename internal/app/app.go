package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tenderbridge/internal/config"
	"tenderbridge/internal/controller"
	"tenderbridge/internal/repository"
	"tenderbridge/internal/router"
	"tenderbridge/internal/service"
)

type App struct {
	Server *http.Server
	Done   chan struct{}

	conf    *config.Config
	address string
	repo    *repository.Repository
	core    *service.Core
	cancel  context.CancelFunc
	once    sync.Once
}

type Option func(*App)

func WithConfig(conf *config.Config) Option {
	return func(app *App) {
		app.conf = conf
	}
}

func WithRepository(repo *repository.Repository) Option {
	return func(app *App) {
		app.repo = repo
	}
}

func WithServerAddress(address string) Option {
	return func(app *App) {
		app.address = address
	}
}

// StartupApp assembles the whole bridge: config, record store, network
// catalog, core and HTTP surface. The returned app is ready to Run and
// shuts itself down on SIGINT/SIGTERM.
func StartupApp(options ...Option) (*App, error) {
	app := &App{Done: make(chan struct{})}
	for _, option := range options {
		option(app)
	}

	if app.conf == nil {
		conf, err := config.NewConfig()
		if err != nil {
			return nil, fmt.Errorf("app.StartupApp: %w", err)
		}
		app.conf = conf
	}
	if app.address != "" {
		app.conf.ServerAddress = app.address
	}

	if app.repo == nil {
		repo, err := repository.NewRepository(&app.conf.PostgresConfig)
		if err != nil {
			return nil, fmt.Errorf("app.StartupApp: %w", err)
		}
		app.repo = repo
	}

	catalog, err := config.LoadNetworks(app.conf.NetworksFile)
	if err != nil {
		return nil, fmt.Errorf("app.StartupApp: %w", err)
	}

	core, err := service.NewCore(app.conf, catalog, app.repo)
	if err != nil {
		return nil, fmt.Errorf("app.StartupApp: %w", err)
	}
	app.core = core

	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel
	core.Start(ctx)

	app.Server = &http.Server{
		Addr:    app.conf.ServerAddress,
		Handler: router.NewRouter(controller.NewController(core)),
		// No write timeout: /api/events streams until the client
		// hangs up.
		ReadTimeout: 30 * time.Second,
	}

	go app.watchSignals()
	return app, nil
}

func (app *App) Run() error {
	log.Println("listening on", app.Server.Addr)
	err := app.Server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return err
}

// Shutdown stops the server, the background loops and both stores.
// Safe to call more than once; Done closes when everything is down.
func (app *App) Shutdown() {
	app.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := app.Server.Shutdown(ctx)
		if err != nil {
			log.Println("app.App.Shutdown:", err)
		}
		app.cancel()

		err = app.core.Shutdown()
		if err != nil {
			log.Println("app.App.Shutdown:", err)
		}
		err = app.repo.Close()
		if err != nil {
			log.Println("app.App.Shutdown:", err)
		}
		close(app.Done)
	})
}

func (app *App) watchSignals() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		app.Shutdown()
	case <-app.Done:
	}
}
