package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"studio-store/internal/app"

	"github.com/spf13/cobra"
)

const signalBufferSize = 1

var shutdownSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		service, err := app.InitializeService(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		serveErr := make(chan error, 1)
		go func() {
			serveErr <- service.Start()
		}()

		quit := make(chan os.Signal, signalBufferSize)
		signal.Notify(quit, shutdownSignals...)

		select {
		case err := <-serveErr:
			_ = service.Shutdown(context.Background())
			return err
		case <-quit:
		}

		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := service.Shutdown(ctx); err != nil {
			return err
		}

		log.Println("Server exited gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
