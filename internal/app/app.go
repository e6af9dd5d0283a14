package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/twmb/franz-go/pkg/sr"

	"github.com/niksmo/pricesync/config"
	"github.com/niksmo/pricesync/internal/adapter"
	"github.com/niksmo/pricesync/internal/adapter/auth"
	"github.com/niksmo/pricesync/internal/adapter/httphandler"
	"github.com/niksmo/pricesync/internal/adapter/kafka"
	"github.com/niksmo/pricesync/internal/adapter/provider"
	"github.com/niksmo/pricesync/internal/adapter/storage"
	"github.com/niksmo/pricesync/internal/core/domain"
	"github.com/niksmo/pricesync/internal/core/port"
	"github.com/niksmo/pricesync/internal/core/service"
	"github.com/niksmo/pricesync/pkg/schema"
)

type coreService struct {
	writer  service.ProductsWriter
	deleter service.Deleter
	syncer  service.Syncer
	webhook service.WebhookIntake
}

type App struct {
	ctx        context.Context
	cfg        config.Config
	store      storage.Store
	producer   port.StatusProducer
	service    coreService
	httpServer httphandler.HTTPServer
}

func New(ctx context.Context, cfg config.Config) *App {
	app := &App{ctx: ctx, cfg: cfg}

	app.initLogger()
	app.initStorage()
	app.initProducer()
	app.initCoreService()
	app.initInboundAdapters()

	return app
}

func (app *App) initLogger() {
	opts := &slog.HandlerOptions{Level: app.cfg.LogLevel}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, opts))
	slog.SetDefault(logger)
}

func (app *App) initStorage() {
	const op = "App.initStorage"

	store, err := storage.Open(app.ctx, storage.Options{
		Driver:                   app.cfg.Storage.Driver,
		DSN:                      app.cfg.Storage.DSN,
		FirestoreProject:         app.cfg.Storage.FirestoreProject,
		FirestoreCredentialsFile: app.cfg.Storage.FirestoreCreds,
		MaxBatchSize:             app.cfg.Storage.MaxBatchSize,
	})
	if err != nil {
		app.fallDown(op, err)
	}
	app.store = store
}

// initProducer is a no-op when no seed brokers are configured.
func (app *App) initProducer() {
	const op = "App.initProducer"

	b := app.cfg.Broker
	if len(b.SeedBrokers) == 0 {
		slog.Info("broker is not configured, status events are not published")
		return
	}

	srClient, err := sr.NewClient(sr.URLs(b.SchemaRegistryURLs...))
	if err != nil {
		app.fallDown(op, err)
	}

	serde, err := schema.NewSerdeTransactionStatusV1(
		app.ctx,
		schema.SubjectOpt(b.StatusTopic+"-value"),
		schema.SchemaIdentifierOpt(schema.NewRegistryIdentifier(srClient)),
	)
	if err != nil {
		app.fallDown(op, err)
	}

	tlsCfg, err := adapter.MakeTLSConfig(b.TLS.CA, b.TLS.Cert, b.TLS.Key)
	if err != nil {
		app.fallDown(op, err)
	}

	producer, err := kafka.NewStatusProducer(
		kafka.ProducerClientOpt(app.ctx, b.SeedBrokers, b.StatusTopic, tlsCfg),
		kafka.ProducerEncoderOpt(serde),
	)
	if err != nil {
		app.fallDown(op, err)
	}
	app.producer = producer
}

func (app *App) initCoreService() {
	const op = "App.initCoreService"

	p := app.cfg.Provider
	fetcher, err := provider.NewCatalogClient(
		provider.URLOpt(p.URL),
		provider.CommandOpt(p.Command, p.SignCommand),
		provider.SKUFieldOpt(p.SKUField),
		provider.TimeoutOpt(p.Timeout),
		provider.MaxBodyBytesOpt(p.MaxBodyBytes),
		provider.RetryOpt(p.MaxAttempts, p.RetryDelay),
	)
	if err != nil {
		app.fallDown(op, err)
	}

	s := app.cfg.Storage
	writer := service.NewProductsWriter(app.store, service.WriterConfig{
		BatchSize: s.BatchSize,
		Retry:     service.StoreRetry(s.MaxAttempts, s.RetryDelay),
	})

	d := app.cfg.Deletion
	deleter := service.NewDeleter(app.store, service.DeleterConfig{
		PageSize:        d.PageSize,
		PagePause:       d.PagePause,
		UserRoot:        d.UserRoot,
		UserCollections: d.UserCollections,
		Retry:           service.StoreRetry(s.MaxAttempts, s.RetryDelay),
	})

	syncer := service.NewSyncer(fetcher, writer, app.store, service.SyncerConfig{
		Credentials: domain.Credentials{Username: p.Username, APIKey: p.APIKey},
	})

	dispatchers := service.Dispatchers{service.NewStatusStore(writer, "")}
	if app.producer != nil {
		dispatchers = append(dispatchers, app.producer)
	}
	webhook := service.NewWebhookIntake(app.cfg.Webhook.Secret, dispatchers, nil)

	app.service = coreService{
		writer:  writer,
		deleter: deleter,
		syncer:  syncer,
		webhook: webhook,
	}
}

func (app *App) initInboundAdapters() {
	const op = "App.initInboundAdapters"

	entries := make([]auth.Entry, len(app.cfg.Auth.Tokens))
	for i, t := range app.cfg.Auth.Tokens {
		entries[i] = auth.Entry{Token: t.Token, UserID: t.UserID, Admin: t.Admin}
	}
	verifier, err := auth.NewTokenTable(entries)
	if err != nil {
		app.fallDown(op, err)
	}

	mux := http.NewServeMux()
	httphandler.RegisterHealth(mux)
	httphandler.RegisterWebhook(mux, app.service.webhook, app.cfg.HTTP.MaxBodyBytes)
	httphandler.RegisterAdmin(
		mux,
		verifier,
		app.service.syncer,
		app.service.writer,
		app.service.deleter,
		app.service.deleter,
	)

	app.httpServer = httphandler.NewHTTPServer(httphandler.ServerConfig{
		Addr:              app.cfg.HTTP.Addr,
		ReadHeaderTimeout: app.cfg.HTTP.ReadHeaderTimeout,
		HandlerTimeout:    app.cfg.HTTP.HandlerTimeout,
	}, mux)
}

// Syncer runs a sync without the HTTP surface, for scheduled jobs.
func (app *App) Syncer() port.SyncRunner {
	return app.service.syncer
}

func (app *App) Run(stopFn context.CancelFunc) {
	go app.httpServer.Run(stopFn)

	slog.Info("application is running")
}

func (app *App) Close(ctx context.Context) {
	slog.Info("application is closing...")

	app.httpServer.Close(ctx)
	if app.producer != nil {
		app.producer.Close()
	}
	app.store.Close()

	slog.Info("application is closed")
}

func (app *App) fallDown(op string, err error) {
	panic(fmt.Errorf("%s: %w", op, err))
}
