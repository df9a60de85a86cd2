package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/BioHazard786/warpcall/internal/logging"
	"github.com/BioHazard786/warpcall/internal/metrics"
	"github.com/BioHazard786/warpcall/internal/relay/hub"
	"github.com/BioHazard786/warpcall/internal/ui"
	"github.com/BioHazard786/warpcall/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagListen       string
	flagRelayMetrics string
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run a signaling relay",
	Long: `Run the room relay that participants connect to over WebSocket.

Examples:
  warpcall relay
  warpcall relay --listen :9000 --metrics :9090`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRelay(cmd.Context())
	},
}

func runRelay(ctx context.Context) error {
	logger := logging.Logger()

	// 1. Create the Hub and run its event loop
	h := hub.NewHub(logger)
	go h.Run(ctx)

	// 2. Register our handlers
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hub.HealthCheck)
	mux.HandleFunc("/ws", hub.ServeWs(h))

	if flagRelayMetrics != "" {
		ms := metrics.NewServer(flagRelayMetrics, logger)
		ms.Start()
		defer shutdown(ms.Shutdown)
	}

	// 3. Start the server
	srv := &http.Server{
		Addr:              flagListen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	ui.PrintInfof("Relay listening on http://localhost%s", flagListen)
	logger.Info("relay started", zap.String("addr", flagListen))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdown(srv.Shutdown)
		ui.PrintSuccess("Relay stopped")
		return nil
	}
}

func shutdown(f func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), utils.LeaveTimeout*time.Second)
	defer cancel()
	_ = f(ctx)
}

func init() {
	rootCmd.AddCommand(relayCmd)
	relayCmd.Flags().StringVarP(&flagListen, "listen", "l", ":8080", "Address to listen on")
	relayCmd.Flags().StringVar(&flagRelayMetrics, "metrics", "", "Serve Prometheus metrics on this address")
}
