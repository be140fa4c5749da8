package sermux

import "go.uber.org/zap"

const (
	// RouteMarker prefixes an addressed record: the marker byte followed
	// by exactly two ASCII digits.
	RouteMarker = '*'

	// BroadcastAddr is the reserved routing address that delivers to every
	// session.
	BroadcastAddr = 99

	routePrefixLen = 3
)

// Router interprets routing prefixes on completed records and delivers
// payloads through the flow-controlled sender.
type Router struct {
	reg    *Registry
	sender *Sender
	log    *zap.Logger
	tap    TapFunc
}

// NewRouter wires a router to a registry and sender.
func NewRouter(reg *Registry, sender *Sender, log *zap.Logger, tap TapFunc) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{reg: reg, sender: sender, log: log, tap: tap}
}

// Dispatch delivers one completed record. A record starting with the
// marker and a two-digit address goes to that session alone with the
// prefix stripped; address 99 broadcasts with the prefix stripped. An
// address outside the active range, or a malformed prefix, falls back to
// broadcasting the whole record untouched so no input is ever silently
// dropped. Unmarked records broadcast as-is.
func (r *Router) Dispatch(data []byte) {
	if len(data) == 0 {
		return
	}
	if data[0] == RouteMarker {
		if addr, ok := parseRouteAddr(data); ok {
			if addr == BroadcastAddr {
				r.broadcast(data[routePrefixLen:])
				return
			}
			if addr < r.reg.Count() {
				r.unicast(addr, data[routePrefixLen:])
				return
			}
			r.log.Debug("routed address outside active range, broadcasting unstripped",
				zap.Int("addr", addr))
		}
	}
	r.broadcast(data)
}

// parseRouteAddr reads the two-digit address of a marked record. False for
// records shorter than the prefix and for non-digit address bytes.
func parseRouteAddr(data []byte) (int, bool) {
	if len(data) < routePrefixLen {
		return 0, false
	}
	d1, d2 := data[1], data[2]
	if d1 < '0' || d1 > '9' || d2 < '0' || d2 > '9' {
		return 0, false
	}
	return int(d1-'0')*10 + int(d2-'0'), true
}

func (r *Router) unicast(addr int, payload []byte) {
	ref, ok := r.reg.GetByIndex(addr)
	if !ok {
		// The slot emptied between the count snapshot and the lookup.
		r.log.Warn("unicast to vacant slot dropped", zap.Int("addr", addr))
		return
	}
	defer ref.Release()
	if err := r.sender.Send(ref.Session(), payload); err != nil {
		r.log.Warn("unicast delivery failed", zap.Int("addr", addr), zap.Error(err))
		tapEmit(r.tap, TapDeliver, addr, ref.Session().Addr(), payload, err)
		return
	}
	tapEmit(r.tap, TapDeliver, addr, ref.Session().Addr(), payload, nil)
}

// broadcast delivers payload to every occupied slot below the occupancy
// count, ascending. The count is read once; slots vacated mid-iteration
// are skipped and per-session failures do not stop the sweep.
func (r *Router) broadcast(payload []byte) {
	n := r.reg.Count()
	for i := 0; i < n; i++ {
		ref, ok := r.reg.GetByIndex(i)
		if !ok {
			continue
		}
		if err := r.sender.Send(ref.Session(), payload); err != nil {
			r.log.Warn("broadcast delivery failed", zap.Int("addr", i), zap.Error(err))
			tapEmit(r.tap, TapDeliver, i, ref.Session().Addr(), payload, err)
		} else {
			tapEmit(r.tap, TapDeliver, i, ref.Session().Addr(), payload, nil)
		}
		ref.Release()
	}
}
