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
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/jrsteele09/synchub/claims"
	"github.com/jrsteele09/synchub/internal/config"
	"github.com/jrsteele09/synchub/internal/logging"
	"github.com/jrsteele09/synchub/server"
	"github.com/jrsteele09/synchub/session"
	"github.com/rs/zerolog/log"
)

const sessionMaxAge = 12 * 60 * 60

func main() {
	for {
		if err := run(); err != nil {
			log.Fatal().Err(err).Msg("Error running web app")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Web app stopped")
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
	logging.NewLogger(c.GetLogLevel(), c.GetEnv())
	if err := config.Validate(c); err != nil {
		return err
	}
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	extractor, err := claims.NewRemoteExtractor(ctx, c.GetIssuer(), c.GetJWKSURL(), c.GetClientID(),
		claims.WithAdminGroup(c.GetAdminGroup()))
	if err != nil {
		return err
	}

	handler, err := server.New(c, sessionStore(c), extractor)
	if err != nil {
		return err
	}

	srv := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go listenAndServe(srv)
	waitForStopSignal()
	returnError = shutdown(srv)
	return returnError
}

// sessionStore builds the configured gorilla store. Without a configured hash
// key a random one is generated, which logs everyone out on restart.
func sessionStore(c config.Config) sessions.Store {
	hashKey := c.GetSessionHashKey()
	if len(hashKey) == 0 {
		log.Warn().Msg("SESSION_HASH_KEY not set, sessions will not survive a restart")
		hashKey = securecookie.GenerateRandomKey(32)
	}

	if c.GetSessionStore() == config.SessionStoreCookie {
		return session.NewCookieStore(hashKey, c.GetSessionBlockKey(), c.GetSessionSecure(), sessionMaxAge)
	}
	dir := c.GetSessionDir()
	if dir == "" {
		dir = os.TempDir()
	}
	log.Info().Str("dir", dir).Msg("Using filesystem sessions")
	return session.NewFilesystemStore(dir, hashKey, c.GetSessionBlockKey(), c.GetSessionSecure(), sessionMaxAge)
}

func listenAndServe(srv *http.Server) {
	log.Info().Msgf("Web app listening on %s", srv.Addr)
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
