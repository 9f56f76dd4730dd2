package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/clove/internal/assistant"
	"github.com/ziadkadry99/clove/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  `Serves repository indexing, retrieval, context building and the assistant over a REST API.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "port to listen on (default server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	port := a.cfg.Server.Port
	if cmd.Flags().Changed("port") {
		port, _ = cmd.Flags().GetInt("port")
	}

	var asst *assistant.Assistant
	if asst, err = a.createAssistant(); err != nil {
		logger.Warn().Err(err).Msg("assistant endpoints disabled")
		asst = nil
	}

	srv := server.New(server.Config{
		Port:     port,
		AllowAll: a.cfg.Server.AllowAllOrigins,
	}, a.ix, asst, logger)

	// Graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().
		Str("version", Version).
		Str("database", a.cfg.DBPath()).
		Str("backend", string(a.cfg.Vector.Backend)).
		Str("collection", a.cfg.Vector.Collection).
		Msg("starting clove server")

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
