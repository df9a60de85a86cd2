package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/config"
	"github.com/BioHazard786/warpcall/internal/ui"
	"github.com/BioHazard786/warpcall/internal/version"
	"github.com/spf13/cobra"
)

// Flags shared by create and join
var (
	flagConfig      string
	flagName        string
	flagDomain      string
	flagRelayURL    string
	flagSTUN        string
	flagTURN        string
	flagTURNUser    string
	flagTURNPass    string
	flagForceRelay  bool
	flagFramePolicy string
	flagMetrics     string
	flagNoScreen    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warpcall",
	Short: "End-to-end encrypted group calls over a WebRTC mesh",
	Long: `WarpCall connects everyone in a room directly over WebRTC. Every pair of
participants agrees on its own key, and each audio and video frame is
encrypted with it before it leaves your machine. The relay only forwards
signaling; it never sees media or keys.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// It returns the process exit code so main can flush logs before exiting.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var callErr *call.CallError
		if errors.As(err, &callErr) {
			callErr.Print()
		} else {
			ui.PrintError(err.Error())
		}
		return 1
	}
	return 0
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		ConfigFile:  flagConfig,
		Domain:      flagDomain,
		RelayURL:    flagRelayURL,
		STUNServer:  flagSTUN,
		TURNServer:  flagTURN,
		TURNUser:    flagTURNUser,
		TURNPass:    flagTURNPass,
		ForceRelay:  flagForceRelay,
		DisplayName: flagName,
		FramePolicy: flagFramePolicy,
		MetricsAddr: flagMetrics,
		NoScreen:    flagNoScreen,
	})
	if err != nil {
		return nil, call.NewError("load config", err)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, errors.New("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

func addCallFlags(c *cobra.Command) {
	c.Flags().StringVarP(&flagName, "name", "n", "", "Display name announced to the room")
	c.Flags().StringVarP(&flagDomain, "domain", "d", "", "Custom domain")
	c.Flags().StringVar(&flagRelayURL, "relay-url", "", "Relay WebSocket URL (overrides --domain)")
	c.Flags().StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	c.Flags().StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	c.Flags().StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	c.Flags().StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	c.Flags().BoolVarP(&flagForceRelay, "force-relay", "r", false, "Force TURN relay for media")
	c.Flags().StringVar(&flagFramePolicy, "frame-policy", "", "Frames before a key exists: passthrough or drop")
	c.Flags().StringVar(&flagMetrics, "metrics", "", "Serve Prometheus metrics on this address")
	c.Flags().BoolVar(&flagNoScreen, "no-screen", false, "Disable screen sharing")
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to a YAML config file")
}
