// Package atlasclient wires the core components — event bus, timed
// events, the operation router, the type service, the entity view, and
// the account/avatar collaborators — into a single per-server session.
// It owns none of their logic; Connection is assembly, not behavior.
package atlasclient

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/worldforge-go/atlasclient/account"
	"github.com/worldforge-go/atlasclient/avatar"
	"github.com/worldforge-go/atlasclient/entity"
	"github.com/worldforge-go/atlasclient/internal/config"
	"github.com/worldforge-go/atlasclient/op"
	"github.com/worldforge-go/atlasclient/router"
	"github.com/worldforge-go/atlasclient/timer"
	"github.com/worldforge-go/atlasclient/typeinfo"
)

// Sender abstracts issuing an encoded operation onto the wire. The
// Transport collaborator that owns the actual socket is out of scope for
// this module (spec.md §1); callers supply an implementation wrapping
// their own codec and connection.
type Sender interface {
	Send(o *op.Op)
}

// Connection is one session against a server: the assembled router,
// type service, entity view, timed-event scheduler, and account
// collaborator, plus whatever avatars are currently possessed. It is not
// safe for concurrent use — everything here runs from a single poll
// loop, per spec.md §5.
type Connection struct {
	logger *slog.Logger

	// TraceID identifies this Connection in log output, so that several
	// concurrent Connections (an account plus its possessed avatars, or
	// multiple accounts in a test harness) can be told apart in a shared
	// log stream.
	TraceID uuid.UUID

	Scheduler *timer.Scheduler
	Router    *router.Router
	Types     *typeinfo.Service
	View      *entity.View
	Account   *account.Account

	sender  Sender
	avatars map[string]*avatar.Avatar
}

// New assembles a Connection from cfg and sender. The router chain is
// registered in §4.5 priority order: account first, then the view as a
// last resort; avatars are inserted ahead of the view as they are
// possessed (see PossessAvatar).
func New(logger *slog.Logger, cfg config.Config, sender Sender) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	traceID := uuid.New()
	logger = logger.With("trace_id", traceID.String())

	r := router.New(logger, cfg.RedispatchLimit)
	sched := timer.New(nil)
	types := typeinfo.New(logger, r, sender, cfg.SeedTypes)
	view := entity.New(logger, types, r, cfg.SimulationSpeed)
	acct := account.New(logger, r, sender, sched)
	if cfg.LoginTimeout.Duration > 0 {
		acct.SetLoginTimeout(cfg.LoginTimeout.Duration)
	}

	c := &Connection{
		logger:    logger,
		TraceID:   traceID,
		Scheduler: sched,
		Router:    r,
		Types:     types,
		View:      view,
		Account:   acct,
		sender:    sender,
		avatars:   make(map[string]*avatar.Avatar),
	}

	r.Use("account", acct.RouterFunc())
	r.Use("view", view.RouterFunc())

	return c
}

// Deliver feeds one decoded inbound operation through the full
// routing/delivery/signal chain, per spec.md §5: the chain runs to
// exhaustion before Deliver returns, matching the "network read loop
// runs to completion on each poll call" ordering guarantee.
func (c *Connection) Deliver(o *op.Op) router.Result {
	return c.Router.Route(o)
}

// PossessAvatar registers a new Avatar for entityID, inserted into the
// router chain ahead of the view router (but the exact position among
// other avatars is insertion order — §4.5 does not rank avatars against
// each other). The caller typically calls this from
// Account.AvatarPossessed.
func (c *Connection) PossessAvatar(entityID string) *avatar.Avatar {
	c.Router.Remove("view")
	a := avatar.New(c.logger, entityID, c.View, c.Router, c.sender)
	c.Router.Use("view", c.View.RouterFunc())
	c.avatars[entityID] = a
	return a
}

// ReleaseAvatar unregisters a previously possessed avatar, typically
// called from Avatar.Deactivated or on an explicit client-side
// character switch.
func (c *Connection) ReleaseAvatar(entityID string) {
	if a, ok := c.avatars[entityID]; ok {
		a.Close()
		delete(c.avatars, entityID)
	}
}

// Avatar returns a currently possessed avatar by entity id.
func (c *Connection) Avatar(entityID string) (*avatar.Avatar, bool) {
	a, ok := c.avatars[entityID]
	return a, ok
}
