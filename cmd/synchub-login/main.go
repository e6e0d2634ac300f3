// Command synchub-login signs a terminal user in through the browser and keeps
// the tokens in a file only that user can read.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jrsteele09/synchub/authflow"
	"github.com/jrsteele09/synchub/claims"
	"github.com/jrsteele09/synchub/internal/config"
	"github.com/jrsteele09/synchub/internal/logging"
	"github.com/jrsteele09/synchub/session"
	"github.com/spf13/pflag"
)

const usage = `Usage: synchub-login [flags] <login|status|logout>

Commands:
  login    open the sign-in page and wait for the browser to come back
  status   show who is signed in
  logout   forget the stored tokens and print the provider logout URL

Flags:
`

type options struct {
	port      int
	timeout   time.Duration
	tokenFile string
}

func main() {
	var o options
	c := config.New()

	flags := pflag.NewFlagSet("synchub-login", pflag.ExitOnError)
	flags.IntVar(&o.port, "port", 8765, "loopback port the browser returns to")
	flags.DurationVar(&o.timeout, "timeout", 5*time.Minute, "how long to wait for the browser")
	flags.StringVar(&o.tokenFile, "token-file", c.GetTokenCachePath(), "where tokens are kept")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	_ = flags.Parse(os.Args[1:])

	logging.NewLogger(config.GetEnv("LOG_LEVEL", "warn"), c.GetEnv())

	if flags.NArg() != 1 {
		flags.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runCommand(ctx, c, o, flags.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, c config.Config, o options, command string) error {
	store := session.NewStore(session.NewFileKV(o.tokenFile))

	switch command {
	case "login":
		redirectURI := loopbackRedirectURI(o.port)
		redirector, err := authflow.NewRedirector(authflow.RedirectorConfig{
			ClientID:            c.GetClientID(),
			IdPDomain:           c.GetIdPDomain(),
			AllowedRedirectURIs: []string{redirectURI},
			Scopes:              c.GetScopes(),
		})
		if err != nil {
			return err
		}
		extractor, err := newExtractor(ctx, c)
		if err != nil {
			return err
		}
		exchanger := authflow.NewOAuth2Exchanger(authflow.Endpoint(c.GetIdPDomain()),
			authflow.WithTimeout(c.GetTokenExchangeTimeout()))
		callback, err := authflow.NewCallbackHandler(exchanger, extractor, c.GetClientID(), redirectURI)
		if err != nil {
			return err
		}

		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", o.port))
		if err != nil {
			return fmt.Errorf("listen on loopback port %d: %w", o.port, err)
		}

		ctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		l := &loopbackLogin{redirector: redirector, callback: callback, store: store, out: os.Stdout}
		sess, err := l.Run(ctx, ln, redirectURI)
		if err != nil {
			return err
		}
		printClaims(sess.Claims)
		return nil

	case "status":
		extractor, err := newExtractor(ctx, c)
		if err != nil {
			return err
		}
		sess, err := store.Current(ctx, extractor)
		if err != nil {
			return err
		}
		if sess == nil {
			fmt.Println("Not signed in")
			return nil
		}
		printClaims(sess.Claims)
		return nil

	case "logout":
		if err := store.Clear(ctx); err != nil {
			return err
		}
		fmt.Println("Signed out. To end the provider session too, open:")
		fmt.Println(authflow.LogoutURL(c.GetIdPDomain(), c.GetClientID(), c.GetLogoutURI()))
		return nil

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func newExtractor(ctx context.Context, c config.Config) (*claims.Extractor, error) {
	return claims.NewRemoteExtractor(ctx, c.GetIssuer(), c.GetJWKSURL(), c.GetClientID(),
		claims.WithAdminGroup(c.GetAdminGroup()))
}

func loopbackRedirectURI(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d/callback", port)
}

func printClaims(c claims.Claims) {
	fmt.Printf("Signed in as %s (%s)\n", c.Email, c.Sub)
	fmt.Printf("  tenant:  %s\n", c.TenantID)
	fmt.Printf("  admin:   %t\n", c.IsAdmin)
	fmt.Printf("  expires: %s\n", c.ExpiresAt().Local().Format(time.RFC1123))
}
