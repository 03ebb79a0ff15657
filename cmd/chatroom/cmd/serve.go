package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nfrund/chatroom/internal/app"
	"github.com/nfrund/chatroom/internal/config"
	"github.com/nfrund/chatroom/internal/logging"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat server",
	Long: `Start the HTTP and WebSocket server. Settings come from the environment
and an optional .env file; --addr overrides APP_ADDR and PORT.

Examples:
  chatroom serve
  chatroom serve --addr :8080
  LOG_FORMAT=json LOG_LEVEL=info chatroom serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.New()
		logging.New(cfg.GetLogFormat(), cfg.GetLogLevel())
		if serveAddr != "" {
			cfg.Addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		injector := app.New(cfg, app.Options{Version: version})
		return app.Run(ctx, injector, cfg.GetAddr())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, e.g. :3000")
	rootCmd.AddCommand(serveCmd)
}
