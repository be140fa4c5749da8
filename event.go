package sermux

// EventType identifies an asynchronous serial driver notification.
type EventType int

const (
	// EventRxReady reports N new bytes read into the armed record's tail.
	// The handler advances the record before the callback returns.
	EventRxReady EventType = iota

	// EventRxBufRequest asks for a standby buffer so reception can roll
	// over without gaps when the current record fills.
	EventRxBufRequest

	// EventRxBufReleased returns a receive buffer the driver no longer
	// writes into.
	EventRxBufReleased

	// EventRxDisabled reports that reception has stopped. The pipeline
	// re-arms with a fresh record.
	EventRxDisabled

	// EventTxDone reports that the submitted record was fully sent.
	EventTxDone

	// EventTxAborted reports an interrupted transmit with N bytes already
	// on the wire. The pipeline re-submits the remainder.
	EventTxAborted
)

func (t EventType) String() string {
	switch t {
	case EventRxReady:
		return "rx-ready"
	case EventRxBufRequest:
		return "rx-buf-request"
	case EventRxBufReleased:
		return "rx-buf-released"
	case EventRxDisabled:
		return "rx-disabled"
	case EventTxDone:
		return "tx-done"
	case EventTxAborted:
		return "tx-aborted"
	default:
		return "unknown"
	}
}

// Event is one serial driver notification.
type Event struct {
	Type EventType
	Rec  *Record
	N    int
}

// Driver is the asynchronous serial transport contract the Pipeline
// drives. Implementations deliver events from their own goroutines, one at
// a time per direction, and never from inside a Driver method call, so the
// handler can safely call back into the driver.
//
// Receive flow: the driver reads into the armed record's Tail and reports
// counts with EventRxReady. When the record fills it rolls over to the
// standby buffer (emitting EventRxBufReleased for the full one) or, with no
// standby available, stops with EventRxDisabled. After DisableRx the driver
// returns every held buffer via EventRxBufReleased and finishes with
// EventRxDisabled.
type Driver interface {
	// SetHandler binds the event callback. Must be called before EnableRx.
	SetHandler(fn func(Event))

	// EnableRx arms reception with a fresh record.
	EnableRx(rec *Record) error

	// DisableRx requests reception stop. Completion is signaled by
	// EventRxDisabled; the call itself does not block.
	DisableRx()

	// SupplyRxBuffer hands the driver a standby record for seamless
	// rollover.
	SupplyRxBuffer(rec *Record)

	// Transmit starts sending rec.Bytes()[off:]. Returns ErrTxBusy while a
	// previous transmit is still in flight. Completion is reported with
	// EventTxDone or EventTxAborted.
	Transmit(rec *Record, off int) error

	Close() error
}
