package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/darkprince558/burrow/internal/config"
	"github.com/darkprince558/burrow/internal/exchange"
	"github.com/darkprince558/burrow/internal/session"
	"github.com/darkprince558/burrow/internal/ui"
)

type tunnelFlags struct {
	headless bool
	peer     string
	port     string
	tokenIn  string
	tokenOut string
}

var (
	hostFlags tunnelFlags
	joinFlags tunnelFlags
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Share a local server: create an offer, then accept the joiner's answer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTunnel(cmd.Context(), ui.RoleHost, hostFlags)
	},
}

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Connect to a host: accept its offer and hand back an answer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTunnel(cmd.Context(), ui.RoleJoiner, joinFlags)
	},
}

func init() {
	hostCmd.Flags().BoolVar(&hostFlags.headless, "headless", false, "Run without the terminal UI")
	hostCmd.Flags().StringVarP(&hostFlags.peer, "peer", "p", "", "Address of the local server to share (default from config)")
	hostCmd.Flags().StringVar(&hostFlags.tokenOut, "offer-out", "", "Headless: also write the offer token to this file")
	hostCmd.Flags().StringVar(&hostFlags.tokenIn, "answer-in", "", "Headless: read the answer token from this file instead of stdin")

	joinCmd.Flags().BoolVar(&joinFlags.headless, "headless", false, "Run without the terminal UI")
	joinCmd.Flags().StringVarP(&joinFlags.port, "port", "p", "", "Local port to expose the tunnel on (default from config)")
	joinCmd.Flags().StringVar(&joinFlags.tokenIn, "offer-in", "", "Headless: read the offer token from this file instead of stdin")
	joinCmd.Flags().StringVar(&joinFlags.tokenOut, "answer-out", "", "Headless: also write the answer token to this file")

	rootCmd.AddCommand(hostCmd, joinCmd)
}

func endpoints(cfg *config.Config, f tunnelFlags) session.Endpoints {
	ep := session.Endpoints{PeerAddress: cfg.PeerAddress, LocalPort: cfg.LocalPort}
	if f.peer != "" {
		ep.PeerAddress = f.peer
	}
	if f.port != "" {
		ep.LocalPort = f.port
	}
	return ep
}

func runTunnel(ctx context.Context, role ui.Role, f tunnelFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(cfg, role, endpoints(cfg, f))
	if err != nil {
		return err
	}
	defer a.Close()

	if f.headless {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runHeadless(ctx, a.session, role, f, cfg.Timeouts.FileIO, os.Stdin, os.Stdout, os.Stderr)
	}
	return runInteractive(a.session, role)
}

func runInteractive(s *session.Session, role ui.Role) error {
	// Process logs would draw over the screen.
	logFile, err := config.OpenLogFile()
	if err == nil {
		defer logFile.Close()
		if err := config.SetupLogging(cfg, logFile, verbose); err != nil {
			return err
		}
	}

	m := ui.NewModel(role, s, ui.Options{FileTimeout: cfg.Timeouts.FileIO})
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

// runHeadless drives one handshake over plain stdin/stdout, then keeps the
// tunnel open until ctx ends or the connection drops.
func runHeadless(ctx context.Context, s *session.Session, role ui.Role, f tunnelFlags, fileIO time.Duration, stdin io.Reader, stdout, stderr io.Writer) error {
	statuses := make(chan session.Status, 16)
	stopObserve := s.Observe(func(c session.Change) {
		switch c.Kind {
		case session.EventLog:
			fmt.Fprintf(stderr, "%s %s\n", c.Entry.Time.Format("15:04:05"), c.Entry.Message)
		case session.EventStatus:
			select {
			case statuses <- c.Status:
			default:
			}
		}
	})
	defer stopObserve()

	s.Subscribe()
	defer s.Unsubscribe()

	in := bufio.NewReader(stdin)

	if role == ui.RoleHost {
		if err := s.GenerateOffer(ctx); err != nil {
			return err
		}
		if err := publishToken(ctx, s, f.tokenOut, fileIO, stdout); err != nil {
			return err
		}
		answer, err := obtainToken(ctx, s, f.tokenIn, fileIO, in, stderr, "answer")
		if err != nil {
			return err
		}
		if err := s.AcceptAnswer(ctx, answer); err != nil {
			return err
		}
	} else {
		offer, err := obtainToken(ctx, s, f.tokenIn, fileIO, in, stderr, "offer")
		if err != nil {
			return err
		}
		if err := s.AcceptOffer(ctx, offer); err != nil {
			return err
		}
		if err := publishToken(ctx, s, f.tokenOut, fileIO, stdout); err != nil {
			return err
		}
	}

	fmt.Fprintln(stderr, "Waiting for the tunnel. Press Ctrl+C to stop.")
	return waitTunnel(ctx, statuses, stderr)
}

func publishToken(ctx context.Context, s *session.Session, path string, timeout time.Duration, stdout io.Writer) error {
	token, kind := s.Snapshot().Outgoing()
	fmt.Fprintln(stdout, token)
	if path == "" {
		return nil
	}
	return s.ExportToken(ctx, token, kind, exchange.File{Path: path, Timeout: timeout})
}

func obtainToken(ctx context.Context, s *session.Session, path string, timeout time.Duration, in *bufio.Reader, prompt io.Writer, kind string) (string, error) {
	if path != "" {
		token, err := s.ImportToken(ctx, exchange.File{Path: path, Timeout: timeout})
		if err != nil {
			return "", err
		}
		return token, nil
	}

	fmt.Fprintf(prompt, "Paste the %s token and press Enter:\n", kind)
	lines := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			errs <- err
			return
		}
		lines <- strings.TrimSpace(line)
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-errs:
		return "", fmt.Errorf("reading %s token: %w", kind, err)
	case line := <-lines:
		return line, nil
	}
}

func waitTunnel(ctx context.Context, statuses <-chan session.Status, stderr io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case st := <-statuses:
			switch st {
			case session.StatusConnected:
				fmt.Fprintln(stderr, "Tunnel is up.")
			case session.StatusError:
				return errors.New("tunnel failed")
			case session.StatusDisconnected:
				return nil
			}
		}
	}
}
