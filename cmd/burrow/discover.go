package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/darkprince558/burrow/internal/discovery"
)

var discoverTimeout time.Duration

// Swapped in tests.
var (
	browseTunnels = discovery.Browse
	findTunnel    = discovery.Find
)

var discoverCmd = &cobra.Command{
	Use:   "discover [label]",
	Short: "List burrow tunnels advertised on the local network",
	Long: `List burrow tunnels advertised on the local network.

With a label, wait for that tunnel and print only its host:port.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDiscover(cmd.Context(), args, discoverTimeout, cmd.OutOrStdout())
	},
}

func init() {
	discoverCmd.Flags().DurationVarP(&discoverTimeout, "timeout", "t", 3*time.Second, "How long to listen for announcements")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(ctx context.Context, args []string, timeout time.Duration, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if len(args) == 1 {
		t, err := findTunnel(ctx, args[0], timeout)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, t.Addr())
		return nil
	}

	tunnels, err := browseTunnels(ctx, timeout)
	if err != nil {
		return fmt.Errorf("mdns browse failed: %w", err)
	}
	if len(tunnels) == 0 {
		fmt.Fprintln(out, "No tunnels found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tADDRESS")
	for _, t := range tunnels {
		fmt.Fprintf(w, "%s\t%s\n", t.Label, t.Addr())
	}
	return w.Flush()
}
