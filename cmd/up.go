/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sermux/sermux"
	"github.com/sermux/sermux/internal/config"
	"github.com/sermux/sermux/internal/logging"
	"github.com/sermux/sermux/link"
	"github.com/sermux/sermux/link/blelink"
	"github.com/sermux/sermux/link/quiclink"
	"github.com/sermux/sermux/link/tcplink"
	"github.com/sermux/sermux/serport"
)

// upCmd represents the up command
var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Run the bridge on a serial device",
	Long: `Open the serial device and bridge it to network peers.

Listeners for every configured transport accept peers until the process
receives SIGINT or SIGTERM. Each peer gets a session address on connect
and receives it as the first record; serial records carrying a *NN
prefix are routed to that session, 99 broadcasts to all.`,
	RunE: runUp,
}

func init() {
	rootCmd.AddCommand(upCmd)

	upCmd.Flags().StringP("device", "d", "", "serial device path (overrides config)")
	upCmd.Flags().IntP("baud", "b", 0, "baud rate (overrides config)")
	upCmd.Flags().StringArray("tcp", nil, "additional TCP listen address (repeatable)")
	upCmd.Flags().StringArray("quic", nil, "additional QUIC listen address (repeatable)")
	upCmd.Flags().Bool("ble", false, "also accept BLE peripherals offering the Nordic UART service")
}

func runUp(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dev, _ := cmd.Flags().GetString("device"); dev != "" {
		cfg.Serial.Device = dev
	}
	if baud, _ := cmd.Flags().GetInt("baud"); baud > 0 {
		cfg.Serial.Baud = baud
	}
	if extra, _ := cmd.Flags().GetStringArray("tcp"); len(extra) > 0 {
		cfg.Listen.TCP = append(cfg.Listen.TCP, extra...)
	}
	if extra, _ := cmd.Flags().GetStringArray("quic"); len(extra) > 0 {
		cfg.Listen.QUIC = append(cfg.Listen.QUIC, extra...)
	}
	if ble, _ := cmd.Flags().GetBool("ble"); ble {
		cfg.BLE.Enable = true
	}

	log, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	drvOpts := []serport.Option{
		serport.WithBaudRate(cfg.Serial.Baud),
		serport.WithReadTimeout(cfg.Serial.ReadTimeoutTenths),
		serport.WithLogger(log.Named("serial")),
	}
	if cfg.Serial.SyncWrites {
		drvOpts = append(drvOpts, serport.WithSyncWrite())
	}
	drv, err := serport.NewDriver(cfg.Serial.Device, drvOpts...)
	if err != nil {
		return fmt.Errorf("opening %s: %w", cfg.Serial.Device, err)
	}

	opts := append(cfg.BridgeOptions(), sermux.WithLogger(log.Named("bridge")))
	bridge, err := sermux.New(drv, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bridge.Start(ctx); err != nil {
		return err
	}
	log.Info("serial side up",
		zap.String("device", cfg.Serial.Device),
		zap.Int("baud", cfg.Serial.Baud))

	linkOpts := []link.Option{link.WithLogger(log.Named("link"))}

	var (
		wg        sync.WaitGroup
		listeners []link.Listener
	)
	closeAll := func() {
		for _, ln := range listeners {
			_ = ln.Close()
		}
	}
	serve := func(ln link.Listener, transport string) {
		listeners = append(listeners, ln)
		log.Info("listening",
			zap.String("transport", transport),
			zap.String("addr", ln.Addr()))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ln.Serve(ctx, bridge); err != nil {
				log.Error("listener failed",
					zap.String("transport", transport),
					zap.String("addr", ln.Addr()),
					zap.Error(err))
			}
		}()
	}
	fail := func(err error) error {
		closeAll()
		wg.Wait()
		_ = bridge.Stop()
		return err
	}

	for _, addr := range cfg.Listen.TCP {
		ln, err := tcplink.Listen(addr, linkOpts...)
		if err != nil {
			return fail(fmt.Errorf("tcp listen %s: %w", addr, err))
		}
		serve(ln, "tcp")
	}
	for _, addr := range cfg.Listen.QUIC {
		ln, err := quiclink.Listen(addr, linkOpts...)
		if err != nil {
			return fail(fmt.Errorf("quic listen %s: %w", addr, err))
		}
		serve(ln, "quic")
	}
	if cfg.BLE.Enable {
		central, err := blelink.NewCentral(linkOpts...)
		if err != nil {
			return fail(fmt.Errorf("ble central: %w", err))
		}
		serve(central, "ble")
	}
	if len(listeners) == 0 {
		return fail(fmt.Errorf("no listeners configured"))
	}

	<-ctx.Done()
	log.Info("shutting down")

	closeAll()
	wg.Wait()
	return bridge.Stop()
}
