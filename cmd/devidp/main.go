package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/synchub/internal/config"
	"github.com/jrsteele09/synchub/internal/devidp"
	"github.com/jrsteele09/synchub/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

type options struct {
	addr     string
	issuer   string
	seedPath string
	keyPath  string
	tokenTTL time.Duration
}

func main() {
	var o options
	pflag.StringVar(&o.addr, "addr", ":9000", "listen address")
	pflag.StringVar(&o.issuer, "issuer", "http://localhost:9000", "public base URL, used as the iss claim")
	pflag.StringVar(&o.seedPath, "seed", "", "YAML file of clients and users (default: built-in accounts)")
	pflag.StringVar(&o.keyPath, "key", "", "PEM signing key, created if missing (default: new key per run)")
	pflag.DurationVar(&o.tokenTTL, "token-ttl", time.Hour, "ID and access token lifetime")
	pflag.Parse()

	c := config.New()
	logging.NewLogger(c.GetLogLevel(), c.GetEnv())

	for {
		if err := run(o); err != nil {
			log.Fatal().Err(err).Msg("Error running identity provider")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Identity provider stopped")
}

func run(o options) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Recovered from panic: %v", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	displayAppname("Dev IdP")

	directory, err := loadDirectory(o.seedPath)
	if err != nil {
		return err
	}

	var providerOpts []devidp.Option
	if o.keyPath != "" {
		kp, err := loadOrCreateKey(o.keyPath)
		if err != nil {
			return err
		}
		providerOpts = append(providerOpts, devidp.WithKeyPair(kp))
	}

	provider, err := devidp.New(devidp.Config{Issuer: o.issuer, TokenTTL: o.tokenTTL}, directory, providerOpts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweepCodes(ctx, provider.Codes())

	srv := &http.Server{Addr: o.addr, Handler: provider.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go listenAndServe(srv, provider.Issuer())
	waitForStopSignal()
	returnError = shutdown(srv)
	return returnError
}

func loadDirectory(path string) (*devidp.Directory, error) {
	if path == "" {
		return devidp.DefaultDirectory()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()
	return devidp.LoadDirectory(f)
}

// loadOrCreateKey keeps the signing key stable across restarts so sessions
// holding earlier tokens stay valid.
func loadOrCreateKey(path string) (*devidp.KeyPair, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return devidp.ParseKeyPair("dev-key", data)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read key: %w", err)
	}

	kp, err := devidp.GenerateKeyPair(2048)
	if err != nil {
		return nil, err
	}
	kp.KeyID = "dev-key"
	if err := os.WriteFile(path, []byte(kp.ExportPrivateKeyPEM()), 0o600); err != nil {
		return nil, fmt.Errorf("write key: %w", err)
	}
	log.Info().Str("path", path).Msg("Created signing key")
	return kp, nil
}

func sweepCodes(ctx context.Context, codes *devidp.CodeStore) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := codes.Sweep(); n > 0 {
				log.Debug().Int("removed", n).Msg("Swept expired authorization codes")
			}
		}
	}
}

func listenAndServe(srv *http.Server, issuer string) {
	log.Info().Str("issuer", issuer).Msgf("Identity provider listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server.ListenAndServe")
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
