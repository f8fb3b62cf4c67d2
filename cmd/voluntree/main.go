// Command voluntree runs the offline development environment: the mock
// authentication backend on a local port, with the real client stack
// (session manager, intercepting transport, document store) wired
// against it and a seeded demo login performed at startup.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voluntree/client-go/authapi"
	"github.com/voluntree/client-go/docstore"
	"github.com/voluntree/client-go/httpclient"
	"github.com/voluntree/client-go/internal/config"
	"github.com/voluntree/client-go/kvstore"
	"github.com/voluntree/client-go/mockapi"
	"github.com/voluntree/client-go/session"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("voluntree stopped")
	}
	log.Info().Msg("voluntree stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()
	cfg, err := config.New()
	if err != nil {
		return err
	}
	if cfg.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	displayAppname(cfg.AppName)

	// Mock backend over the shared document store.
	store := docstore.New(kvstore.NewFileStore(cfg.DataDir, "backend"), "voluntree")
	mock, err := mockapi.New(store, cfg.MockSecret)
	if err != nil {
		return err
	}
	mock.Seed()

	// Bind before the demo session runs so its first request cannot hit
	// a closed port.
	listener, err := net.Listen("tcp", ":"+cfg.MockPort)
	if err != nil {
		return fmt.Errorf("net.Listen: %w", err)
	}
	server := &http.Server{Handler: mock}
	go serve(server, listener)

	if err := demoSession(cfg); err != nil {
		log.Warn().Err(err).Msg("demo session failed")
	}

	waitForStopSignal()
	return shutdown(server)
}

// demoSession wires the real client layers against the mock backend
// and walks the startup-then-login path a browser client would take.
func demoSession(cfg *config.Config) error {
	kv := kvstore.NewFileStore(cfg.DataDir, "client")
	nav := session.NavigatorFunc(func(path string) {
		log.Info().Str("path", path).Msg("navigate")
	})
	creds := session.NewCredentialStore(kv, nav)

	httpClient, err := httpclient.New(creds, cfg.HTTPTimeout)
	if err != nil {
		return err
	}
	api, err := authapi.NewClient(cfg.APIBaseURL, httpClient)
	if err != nil {
		return err
	}
	creds.BindRefresher(api)

	mgr, err := session.NewManager(api, creds, nav)
	if err != nil {
		return err
	}

	cancel := mgr.Subscribe(func(s session.Snapshot) {
		log.Info().Str("state", string(s.State)).Bool("loading", s.Loading).Msg("session changed")
	})
	defer cancel()

	ctx, cancelCtx := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelCtx()

	mgr.Initialize(ctx)
	if mgr.Current().State == session.StateAuthenticated {
		log.Info().Str("username", mgr.Current().User.Username).Msg("session rehydrated from storage")
		return nil
	}
	if err := mgr.Login(ctx, "ada", "volunteer1!"); err != nil {
		return err
	}
	log.Info().Str("username", mgr.Current().User.Username).Msg("logged in as seeded volunteer")
	return nil
}

func serve(server *http.Server, listener net.Listener) {
	log.Info().Str("addr", listener.Addr().String()).Msg("mock backend listening")
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("mock backend stopped")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
