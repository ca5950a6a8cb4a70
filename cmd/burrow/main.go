// Command burrow opens a peer-to-peer TCP tunnel between two machines by
// having the two users swap an offer and an answer token by hand.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/darkprince558/burrow/internal/config"
)

var (
	configFile string
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Share a local TCP server with a friend over WebRTC",
	Long: `burrow tunnels one TCP port between two machines without a server in the middle.

The host runs "burrow host", sends the offer token to the joiner, and pastes back
the answer token the joiner's "burrow join" produced. Tokens can be copied through
the clipboard or saved to files.

Settings are read from ~/.burrow/config.json and BURROW_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return config.SetupLogging(cfg, os.Stderr, verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file (default ~/.burrow/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Debug("Command failed")
		os.Exit(1)
	}
}
