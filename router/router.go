// Package router implements the Operation Router (C5) and the Redispatch
// Queue (C9). Routing is table-driven rather than class-hierarchy-driven:
// a chain of small routers is consulted in priority order, and an op
// that cannot yet be routed because of a missing fact (an unbound type,
// an unsighted parent) is parked in the redispatch queue until that fact
// becomes known.
//
// The package also owns the Pending Request table (§3 Data Model): a
// serial number plus a kind tag, used to correlate an asynchronous
// server reply back to whatever issued the original request (the type
// service's GET, an account's LOGIN, and so on). Refno correlation is
// checked before the router chain runs at all, and always counts as
// HANDLED once a match is found.
package router

import (
	"log/slog"

	"github.com/worldforge-go/atlasclient/op"
)

// Result is the outcome a single router in the chain reports for one op.
type Result int

const (
	// Handled means this router fully processed the op; the chain stops.
	Handled Result = iota
	// Ignored means this router has nothing to do with the op; the
	// chain continues to the next router.
	Ignored
	// WillRedispatch means this router recognised the op but could not
	// process it yet because a precondition (type bound, parent
	// sighted) is not satisfied. The op is parked in the redispatch
	// queue under the trigger key the router names.
	WillRedispatch
)

// Func is one router in the chain. It returns the Result and, when the
// Result is WillRedispatch, the trigger key under which the op should be
// parked (e.g. "type-bound:farmer", "entity-seen:e17").
type Func func(o *op.Op) (Result, string)

// PendingKind tags what a pending request is waiting for, so that a
// timeout or a reply can be handled by the right kind-specific failure
// path.
type PendingKind int

const (
	PendingTypeLookup PendingKind = iota
	PendingLogin
	PendingLogout
	PendingLook
	PendingCreate
	PendingPossess
)

func (k PendingKind) String() string {
	switch k {
	case PendingTypeLookup:
		return "type-lookup"
	case PendingLogin:
		return "login"
	case PendingLogout:
		return "logout"
	case PendingLook:
		return "look"
	case PendingCreate:
		return "create"
	case PendingPossess:
		return "possess"
	default:
		return "unknown"
	}
}

type pendingEntry struct {
	kind    PendingKind
	onReply func(reply *op.Op)
	onError func(reply *op.Op)
}

type redispatchEntry struct {
	o            *op.Op
	triggerKey   string
	attemptsLeft int
}

type namedRouter struct {
	name string
	fn   Func
}

// Router holds the router chain, the pending-request table, and the
// redispatch queue. It is not safe for concurrent use; like the rest of
// the core it is driven synchronously from a single poll loop.
type Router struct {
	logger       *slog.Logger
	chain        []namedRouter
	pending      map[int64]*pendingEntry
	nextSerial   int64
	redispatch   map[string][]*redispatchEntry
	attemptLimit int
}

// New returns a Router with an empty chain. attemptLimit bounds how many
// times a single op may be re-enqueued into the redispatch queue before
// it is dropped (spec default: 16). A nil logger defaults to
// slog.Default().
func New(logger *slog.Logger, attemptLimit int) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if attemptLimit <= 0 {
		attemptLimit = 16
	}
	return &Router{
		logger:       logger,
		pending:      make(map[int64]*pendingEntry),
		redispatch:   make(map[string][]*redispatchEntry),
		attemptLimit: attemptLimit,
	}
}

// Use appends a named router to the end of the chain. Order matters:
// register account, then avatar(s), then the view, then any fallback —
// matching §4.5's priority list (refno correlation itself is handled
// separately, before the chain runs at all).
func (r *Router) Use(name string, fn Func) {
	r.chain = append(r.chain, namedRouter{name: name, fn: fn})
}

// Remove drops a previously registered router by name (used when an
// avatar controller is torn down).
func (r *Router) Remove(name string) {
	for i, nr := range r.chain {
		if nr.name == name {
			r.chain = append(r.chain[:i], r.chain[i+1:]...)
			return
		}
	}
}

// NextSerial returns a fresh serial number for an outbound request,
// unique for the lifetime of this Router.
func (r *Router) NextSerial() int64 {
	r.nextSerial++
	return r.nextSerial
}

// AddPending registers a continuation for serial: onReply fires if a
// non-error op arrives with a matching refno, onError fires if an
// "error"-classed op arrives instead. Either callback may be nil.
func (r *Router) AddPending(serial int64, kind PendingKind, onReply, onError func(reply *op.Op)) {
	r.pending[serial] = &pendingEntry{kind: kind, onReply: onReply, onError: onError}
}

// CancelPending removes a pending entry (used by a timeout firing) and
// reports whether it was still outstanding. If it returns false the
// request was already completed (or never existed) and the caller
// should not fire a timeout signal — matching the "no further signal on
// later arrival" requirement once a timeout has already resolved it.
func (r *Router) CancelPending(serial int64) (PendingKind, bool) {
	entry, ok := r.pending[serial]
	if !ok {
		return 0, false
	}
	delete(r.pending, serial)
	return entry.kind, true
}

// PendingCount reports the number of outstanding pending requests.
func (r *Router) PendingCount() int {
	return len(r.pending)
}

// Route runs refno correlation first, then the router chain, for a
// freshly arrived op. Refno correlation always counts as Handled once a
// match is found, per §4.5 priority 1.
func (r *Router) Route(o *op.Op) Result {
	if refno, ok := o.Refno(); ok {
		if entry, ok := r.pending[refno]; ok {
			delete(r.pending, refno)
			if o.Class() == "error" {
				if entry.onError != nil {
					entry.onError(o)
				}
			} else {
				if entry.onReply != nil {
					entry.onReply(o)
				}
			}
			return Handled
		}
	}
	return r.dispatch(o, r.attemptLimit)
}

func (r *Router) dispatch(o *op.Op, attemptsLeft int) Result {
	for _, nr := range r.chain {
		result, triggerKey := nr.fn(o)
		switch result {
		case Handled:
			return Handled
		case WillRedispatch:
			r.enqueueRedispatch(o, triggerKey, attemptsLeft)
			return WillRedispatch
		case Ignored:
			continue
		}
	}
	r.logger.Warn("unroutable operation dropped", "class", o.Class(), "from", o.From(), "to", o.To())
	return Ignored
}

func (r *Router) enqueueRedispatch(o *op.Op, triggerKey string, attemptsLeft int) {
	remaining := attemptsLeft - 1
	if remaining <= 0 {
		r.logger.Error("dropping op after exceeding redispatch attempt limit",
			"class", o.Class(), "trigger", triggerKey, "limit", r.attemptLimit)
		return
	}
	r.redispatch[triggerKey] = append(r.redispatch[triggerKey], &redispatchEntry{
		o: o, triggerKey: triggerKey, attemptsLeft: remaining,
	})
}

// Fire re-feeds every op parked under triggerKey back through the router
// chain, in original arrival order, then clears that key. Ops that
// still cannot be routed are re-enqueued (with attempts-left already
// decremented by the earlier enqueue) or dropped if they have run out
// of attempts. Unrelated trigger keys are untouched, so firing one key
// repeatedly has no effect on an op queued under a different key.
func (r *Router) Fire(triggerKey string) {
	entries := r.redispatch[triggerKey]
	delete(r.redispatch, triggerKey)
	for _, e := range entries {
		r.dispatch(e.o, e.attemptsLeft)
	}
}

// RedispatchLen reports how many ops are currently parked under
// triggerKey. Primarily useful for tests and diagnostics.
func (r *Router) RedispatchLen(triggerKey string) int {
	return len(r.redispatch[triggerKey])
}
