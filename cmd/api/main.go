package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"slices"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/synchub/api"
	"github.com/jrsteele09/synchub/authz"
	"github.com/jrsteele09/synchub/claims"
	"github.com/jrsteele09/synchub/internal/config"
	"github.com/jrsteele09/synchub/internal/logging"
	"github.com/jrsteele09/synchub/settings"
	"github.com/jrsteele09/synchub/store"
	"github.com/jrsteele09/synchub/store/dynamo"
	"github.com/jrsteele09/synchub/store/memstore"
	"github.com/jrsteele09/synchub/store/postgres"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const defaultAPIPort = ":8081"

func main() {
	for {
		if err := run(); err != nil {
			log.Fatal().Err(err).Msg("Error running API")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("API stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Recovered from panic: %v", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logger := logging.NewLogger(c.GetLogLevel(), c.GetEnv())
	if err := config.Validate(c); err != nil {
		return err
	}
	displayAppname(c.GetAppName() + " API")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	settingsTable, auditTable, closeStore, err := openTables(ctx, c)
	if err != nil {
		return err
	}
	defer closeStore()

	extractor, err := claims.NewRemoteExtractor(ctx, c.GetIssuer(), c.GetJWKSURL(), c.GetClientID(),
		claims.WithAdminGroup(c.GetAdminGroup()))
	if err != nil {
		return err
	}

	handler := api.NewServer(logger, settings.NewService(settingsTable, auditTable), extractor, authz.NewGate(),
		api.WithAllowedOrigins(slices.Sorted(maps.Keys(c.GetAllowedOrigins()))))

	addr := c.GetPort()
	if os.Getenv("PORT") == "" {
		addr = defaultAPIPort
	}
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go listenAndServe("API", srv)

	var metrics *http.Server
	if port := c.GetMetricsPort(); port != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metrics = &http.Server{Addr: port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go listenAndServe("Metrics", metrics)
	}

	waitForStopSignal()
	returnError = shutdown(srv)
	if metrics != nil {
		returnError = errors.Join(returnError, shutdown(metrics))
	}
	return returnError
}

// openTables connects the configured storage backend.
func openTables(ctx context.Context, c config.Config) (store.Table, store.Table, func(), error) {
	settingsSchema := settings.SettingsSchema(c.GetSettingsTable())
	auditSchema := settings.AuditSchema(c.GetAuditTable())
	backend := c.GetStoreBackend()
	log.Info().Str("backend", backend).Msg("Opening store")

	switch backend {
	case config.StoreBackendDynamoDB:
		accessKey, secretKey, sessionToken := c.GetAWSCredentials()
		client := dynamo.NewClient(dynamo.ClientConfig{
			Region:       c.GetAWSRegion(),
			Endpoint:     c.GetAWSEndpoint(),
			AccessKey:    accessKey,
			SecretKey:    secretKey,
			SessionToken: sessionToken,
		})
		return dynamo.New(client, settingsSchema), dynamo.New(client, auditSchema), func() {}, nil

	case config.StoreBackendPostgres:
		if err := postgres.RunMigrations(c.GetDatabaseURL()); err != nil {
			return nil, nil, nil, err
		}
		pool, err := postgres.NewPool(ctx, c.GetDatabaseURL())
		if err != nil {
			return nil, nil, nil, err
		}
		return postgres.New(pool, settingsSchema), postgres.New(pool, auditSchema), pool.Close, nil

	default:
		log.Warn().Msg("Using in-memory store, data is lost on restart")
		return memstore.New(settingsSchema), memstore.New(auditSchema), func() {}, nil
	}
}

func listenAndServe(name string, srv *http.Server) {
	log.Info().Msgf("%s listening on %s", name, srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Str("server", name).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
