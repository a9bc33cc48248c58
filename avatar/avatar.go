// Package avatar implements the Avatar controller described as an
// external collaborator in spec.md §6: a per-active-character layer on
// top of the Operation Router and Entity View, claiming operations
// addressed to or from its own entity before the view router gets a
// chance at them (§4.5 priority 3).
package avatar

import (
	"log/slog"

	"github.com/worldforge-go/atlasclient/bus"
	"github.com/worldforge-go/atlasclient/entity"
	"github.com/worldforge-go/atlasclient/op"
	"github.com/worldforge-go/atlasclient/router"
)

// Sender abstracts issuing an operation onto the wire.
type Sender interface {
	Send(o *op.Op)
}

// Avatar owns the router layer for one possessed character. It applies
// entity sights scoped to its entity to the View directly, leaves
// appear/disappear/delete/sound operations to the next router in the
// chain, and reports inventory-relevant operations (a sighted "use" or
// "wield") and a server-forced logout through its own signals. It does
// not handle "move" operations, and reports no task-related operations.
type Avatar struct {
	logger *slog.Logger
	view   *entity.View
	router *router.Router
	sender Sender

	EntityID   string
	routerName string

	// Entity is the avatar's own possessed entity, once sighted.
	Entity *entity.Entity

	// InventoryChanged fires when a sight-of-op reveals a change to the
	// avatar's carried items that the view's generic property delivery
	// does not itself model (a "use"/"wield" style operation).
	InventoryChanged *bus.Bus[*op.Op]
	// Deactivated fires when the server logs this avatar out from under
	// the account while the account itself stays logged in.
	Deactivated *bus.Bus[struct{}]
}

// New constructs an Avatar for entityID and appends its router to the end
// of r's chain with Use, so it runs after every router already
// registered. Close unregisters it.
func New(logger *slog.Logger, entityID string, v *entity.View, r *router.Router, sender Sender) *Avatar {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Avatar{
		logger:           logger,
		view:             v,
		router:           r,
		sender:           sender,
		EntityID:         entityID,
		routerName:       "avatar:" + entityID,
		InventoryChanged: bus.New[*op.Op](),
		Deactivated:      bus.New[struct{}](),
	}
	if e, ok := v.Entity(entityID); ok {
		a.Entity = e
	}
	r.Use(a.routerName, a.routerFunc())
	return a
}

// Close unregisters the avatar's router from the chain. The underlying
// entity, if any, is left in the view untouched.
func (a *Avatar) Close() {
	a.router.Remove(a.routerName)
}

// TopEntity returns the root of the possessed character's containment
// chain — the room or world it ultimately sits in — or nil if the avatar
// has no entity yet, or that chain is still waiting on an unsighted
// parent to bind.
func (a *Avatar) TopEntity() *entity.Entity {
	if a.Entity == nil {
		return nil
	}
	return a.Entity.TopEntity()
}

// addressedToMe reports whether o is scoped to this avatar's entity,
// either as the destination or as the originator.
func (a *Avatar) addressedToMe(o *op.Op) bool {
	return o.To() == a.EntityID || o.From() == a.EntityID
}

func (a *Avatar) routerFunc() router.Func {
	return func(o *op.Op) (router.Result, string) {
		if !a.addressedToMe(o) {
			return router.Ignored, ""
		}

		switch o.Class() {
		case "sight":
			arg, ok := o.FirstArg()
			if !ok {
				return router.Ignored, ""
			}
			if arg.ID() != "" {
				e := a.view.SightEntity(arg, false)
				if arg.ID() == a.EntityID {
					a.Entity = e
				}
				return router.Handled, ""
			}
			switch arg.Class() {
			case "use", "wield":
				a.InventoryChanged.Emit(arg)
				return router.Handled, ""
			default:
				return router.Ignored, ""
			}
		case "appear", "disappear", "delete", "sound":
			// These are all scoped to entities, not specifically to this
			// avatar's inventory/task concerns; let the view router (next
			// in the chain) handle them.
			return router.Ignored, ""
		case "logout":
			a.Deactivated.Emit(struct{}{})
			return router.Handled, ""
		default:
			return router.Ignored, ""
		}
	}
}
