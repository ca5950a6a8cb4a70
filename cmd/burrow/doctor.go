package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/darkprince558/burrow/internal/backend"
	"github.com/darkprince558/burrow/internal/config"
)

var doctorTimeout time.Duration

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the configured STUN/TURN servers and local server are reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if failed := runDoctor(cmd.Context(), cfg, doctorTimeout, os.Stdout); failed > 0 {
			return fmt.Errorf("%d check(s) failed", failed)
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().DurationVarP(&doctorTimeout, "timeout", "t", 5*time.Second, "Timeout per check")
	rootCmd.AddCommand(doctorCmd)
}

// runDoctor prints one line per check and returns how many failed.
func runDoctor(ctx context.Context, cfg *config.Config, timeout time.Duration, out io.Writer) int {
	failed := 0

	if _, err := backend.ICEServers(cfg.ICEServers, cfg.TURN.Username, cfg.TURN.Credential); err != nil {
		fmt.Fprintf(out, "FAIL  ice_servers: %v\n", err)
		failed++
	}

	for _, url := range cfg.ICEServers {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		res, err := backend.Probe(pctx, url)
		cancel()
		if err != nil {
			fmt.Fprintf(out, "FAIL  %s: %v\n", url, err)
			failed++
			continue
		}
		fmt.Fprintf(out, "OK    %s: public address %s (%v)\n", url, res.Mapped, res.RTT.Round(time.Millisecond))
	}

	conn, err := net.DialTimeout("tcp", cfg.PeerAddress, timeout)
	if err != nil {
		// Only the host needs this, so it is a warning.
		fmt.Fprintf(out, "WARN  local server %s: %v\n", cfg.PeerAddress, err)
	} else {
		conn.Close()
		fmt.Fprintf(out, "OK    local server %s is accepting connections\n", cfg.PeerAddress)
	}

	ln, err := net.Listen("tcp", ":"+cfg.LocalPort)
	if err != nil {
		fmt.Fprintf(out, "WARN  local port %s: %v\n", cfg.LocalPort, err)
	} else {
		ln.Close()
		fmt.Fprintf(out, "OK    local port %s is free\n", cfg.LocalPort)
	}

	return failed
}
