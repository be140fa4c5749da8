// Package sermux bridges a single serial line to many wireless peer
// sessions with addressable routing.
//
// Bytes arriving on the serial side are reassembled into line-terminated
// records of a fixed capacity. A record beginning with '*' and two decimal
// digits is delivered to the session occupying that slot; address 99
// broadcasts. Everything else is broadcast to all sessions. Data arriving
// from a peer is cut into records, routed the same way when marked, and
// always echoed to the serial line. All buffers come from a preallocated
// arena; nothing on the data path allocates.
//
// # Basic Usage
//
// Assemble a bridge over a serial driver and attach link listeners:
//
//	drv, err := serport.NewDriver("/dev/ttyUSB0",
//	    serport.WithBaudRate(115200),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	bridge, err := sermux.New(drv,
//	    sermux.WithMaxSessions(8),
//	    sermux.WithLogger(logger),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := bridge.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer bridge.Stop()
//
//	ln, _ := tcplink.Listen(":7770", link.WithLogger(logger))
//	go ln.Serve(ctx, bridge)
//
// # Sessions and Addresses
//
// Each attached peer occupies the lowest free registry slot; the slot
// index is the session's routing address. On attach the bridge sends the
// peer its own address as a CR-terminated decimal record. Slots are reused
// after a session ends, so addresses stay small and stable.
//
// # Flow Control
//
// One wireless write is in flight at a time, across all sessions. The next
// write starts when the transport confirms the previous one or after the
// confirmation window (150ms by default) expires. Timed-out writes are
// abandoned, never retried.
//
// # Buffering
//
// Records live in a fixed arena sized at startup. When the arena runs dry
// the serial receiver stalls and retries on a timer (50ms by default), and
// oversized peer blobs are truncated after a warning. Exhaustion is load
// shedding, not failure.
//
// # Error Handling
//
// The package provides specific error types for robust error handling:
//
//	var (
//	    ErrNoBuffers    // record arena exhausted
//	    ErrRegistryFull // every session slot occupied
//	    ErrSendTimeout  // transport confirmation window expired
//	    ErrTxBusy       // serial transmitter already active
//	    // ... and more
//	)
//
// Use errors.Is() for error type checking:
//
//	if errors.Is(err, sermux.ErrSendTimeout) {
//	    // Delivery was abandoned
//	}
//
// # Default Configuration
//
//   - RecordCapacity: 20
//   - ArenaSlots: 16
//   - MaxSessions: 20
//   - SendTimeout: 150ms
//   - RearmDelay: 50ms
//
// Subpackages: serport implements the serial driver over termios and a
// simulated driver for tests and the console; link and its children carry
// the wireless side (TCP, QUIC, BLE and in-process pipes).
package sermux
