/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sermux/sermux"
	"github.com/sermux/sermux/internal/config"
	"github.com/sermux/sermux/internal/logging"
	"github.com/sermux/sermux/internal/tui"
	"github.com/sermux/sermux/link"
	"github.com/sermux/sermux/link/memlink"
	"github.com/sermux/sermux/link/tcplink"
	"github.com/sermux/sermux/serport"
)

// consoleCmd represents the console command
var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive bridge console on a simulated serial device",
	Long: `Run the bridge against a simulated serial device with a full-screen
console showing every record as it moves.

The input field plays the attached serial device: whatever you type is
injected as serial ingress, so '*00 ping' routes to session 0 and
'*99 ping' broadcasts. A few in-process demo peers connect at startup
and acknowledge what they receive; real peers can join over TCP with
--tcp.

Key bindings follow vim convention: 'i' to type, Esc to leave the
input, 'h'/'a' to toggle hex and ASCII display, 'c' to clear, 'q' to
quit.`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)

	consoleCmd.Flags().Int("peers", 2, "number of in-process demo peers")
	consoleCmd.Flags().StringArray("tcp", nil, "also accept real peers on this TCP address (repeatable)")
	consoleCmd.Flags().String("log-file", "", "write bridge logs to this file (the terminal belongs to the console)")
}

func runConsole(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	peerCount, _ := cmd.Flags().GetInt("peers")
	tcpAddrs, _ := cmd.Flags().GetStringArray("tcp")
	logFile, _ := cmd.Flags().GetString("log-file")

	log, err := consoleLogger(cfg, logFile)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	sim := serport.NewSim()
	relay := tui.NewRelay(512)

	opts := append(cfg.BridgeOptions(),
		sermux.WithLogger(log.Named("bridge")),
		sermux.WithTap(relay.Tap()))
	bridge, err := sermux.New(sim, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := bridge.Start(ctx); err != nil {
		return err
	}

	linkOpts := []link.Option{link.WithLogger(log.Named("link"))}

	var (
		wg        sync.WaitGroup
		listeners []link.Listener
	)
	serve := func(ln link.Listener) {
		listeners = append(listeners, ln)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ln.Serve(ctx, bridge)
		}()
	}

	nw := memlink.NewNetwork()
	memLn, err := nw.Listen("console", linkOpts...)
	if err != nil {
		_ = bridge.Stop()
		return err
	}
	serve(memLn)

	for _, addr := range tcpAddrs {
		ln, err := tcplink.Listen(addr, linkOpts...)
		if err != nil {
			for _, open := range listeners {
				_ = open.Close()
			}
			wg.Wait()
			_ = bridge.Stop()
			return fmt.Errorf("tcp listen %s: %w", addr, err)
		}
		serve(ln)
	}

	for n := 0; n < peerCount; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			runDemoPeer(nw, fmt.Sprintf("demo-%d", n))
		}(n)
	}

	model := tui.NewConsole("sim:console", cfg.Bridge.MaxSessions, cfg.Bridge.ArenaSlots,
		func(data []byte) error {
			if accepted := sim.Inject(data); accepted < len(data) {
				return fmt.Errorf("serial overrun, %d of %d bytes accepted", accepted, len(data))
			}
			return nil
		},
		func() ([]sermux.SessionInfo, int) {
			return bridge.Sessions(), bridge.FreeRecords()
		})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())

	go func() {
		p.Send(tui.StatusMsg{Running: true})
		for ev := range relay.Events() {
			p.Send(tui.TapMsg(ev))
		}
	}()

	_, runErr := p.Run()

	cancel()
	for _, ln := range listeners {
		_ = ln.Close()
	}
	wg.Wait()
	stopErr := bridge.Stop()
	relay.Close()

	if runErr != nil {
		return runErr
	}
	return stopErr
}

// runDemoPeer keeps one in-process peer on the bridge: it takes its
// registration record, then acknowledges every record routed to it. It
// exits when the link goes down.
func runDemoPeer(nw *memlink.Network, name string) {
	conn, err := nw.Dial("console")
	if err != nil {
		return
	}
	client, err := link.NewClient(conn, name)
	if err != nil {
		return
	}
	defer func() { _ = client.Close() }()

	if _, err := client.Recv(); err != nil {
		return
	}
	for {
		rec, err := client.Recv()
		if err != nil {
			return
		}
		if err := client.Send(append([]byte("ack "), rec...)); err != nil {
			return
		}
	}
}

// consoleLogger discards logs unless a file is given; the terminal is
// owned by the TUI.
func consoleLogger(cfg *config.Config, logFile string) (*zap.Logger, error) {
	if logFile == "" {
		return zap.NewNop(), nil
	}
	lc := cfg.LoggingConfig()
	lc.Format = "json"
	lc.Outputs = []string{logFile}
	return logging.New(lc)
}
