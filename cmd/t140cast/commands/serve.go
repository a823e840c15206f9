package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var (
	serveHost  string
	servePort  int
	serveDev   bool
	serveStore string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the connection manager",
	Long: `Run the HTTP API, the admin WebSocket feed and the connection manager.

Device statuses left online or connecting by a previous run are reset to
offline at start. On SIGINT or SIGTERM the server stops accepting requests
and every live device connection is closed.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveHost, "host", "", "listen host (overrides server.host)")
	f.IntVar(&servePort, "port", 0, "listen port (overrides server.port)")
	f.BoolVar(&serveDev, "dev", false, "register the credential-free echo provider")
	f.StringVar(&serveStore, "store", "", "record store driver: file, badger, memory or s3")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveStore != "" {
		cfg.Store.Driver = serveStore
	}
	cfg.LLM.Dev = cfg.LLM.Dev || serveDev
	if err := cfg.Validate(); err != nil {
		return err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	log, closeLog, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	if _, err := a.mgr.Recover(ctx); err != nil {
		log.Warn("serve: recover device statuses", "err", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("serve: listening", "addr", srv.Addr, "store", cfg.Store.Driver, "fanout", cfg.Fanout.Mode)
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("serve: shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("serve: http shutdown", "err", err)
	}
	if err := a.Close(shutdownCtx); err != nil {
		log.Warn("serve: close", "err", err)
	}
	return serveErr
}
