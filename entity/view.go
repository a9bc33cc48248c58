package entity

import (
	"log/slog"
	"time"

	"github.com/worldforge-go/atlasclient/op"
	"github.com/worldforge-go/atlasclient/router"
	"github.com/worldforge-go/atlasclient/typeinfo"
)

// View is the Entity View (C6): the entity table, containment tree, and
// the glue that turns sight/appear/disappear/sound/delete operations
// into entity mutations and signal emissions. It is not safe for
// concurrent use.
type View struct {
	logger *slog.Logger
	types  *typeinfo.Service
	router *router.Router

	// SimulationSpeed scales the wall-clock delta used by motion
	// prediction (§4.7); 1.0 is real time.
	SimulationSpeed float64

	entities map[string]*Entity

	// pendingParentWait indexes entities waiting on a not-yet-sighted
	// parent, keyed by that parent's id.
	pendingParentWait map[string][]string
}

// New constructs an empty View. simulationSpeed of 0 is treated as 1.0
// (real time).
func New(logger *slog.Logger, types *typeinfo.Service, r *router.Router, simulationSpeed float64) *View {
	if logger == nil {
		logger = slog.Default()
	}
	if simulationSpeed == 0 {
		simulationSpeed = 1.0
	}
	v := &View{
		logger:            logger,
		types:             types,
		router:            r,
		SimulationSpeed:   simulationSpeed,
		entities:          make(map[string]*Entity),
		pendingParentWait: make(map[string][]string),
	}

	// The anonymous-type fallback (§SUPPLEMENTED FEATURES 2): if a
	// type an entity already points to is later reported bad, swap
	// that entity onto the builtin anonymous type rather than leaving
	// it permanently typeless.
	types.Bad.Subscribe(func(info *typeinfo.Info) {
		anon := v.types.Anonymous()
		for _, e := range v.entities {
			if e.Type == info {
				e.Type = anon
			}
		}
	})

	// Relay type-bind completion into the router's redispatch queue so
	// any op parked under "type-bound:<name>" is retried exactly once.
	types.Bound.Subscribe(func(info *typeinfo.Info) {
		if v.router != nil {
			v.router.Fire("type-bound:" + info.Name)
		}
	})

	return v
}

// Entity looks up an entity by id.
func (v *View) Entity(id string) (*Entity, bool) {
	e, ok := v.entities[id]
	return e, ok
}

// Len reports how many entities the view currently holds.
func (v *View) Len() int {
	return len(v.entities)
}

// SightEntity processes a decoded entity description — either a fresh
// SIGHT or the entity argument of a create-op reply (recentlyCreated
// true in the latter case). It allocates the entity on first sight,
// resolves its type, lazily stubs any not-yet-known "contains" members,
// applies every other property through SetProperty, and finally applies
// "loc" so containment resolves once the rest of the entity's state has
// landed.
func (v *View) SightEntity(desc *op.Op, recentlyCreated bool) *Entity {
	id := desc.ID()
	if id == "" {
		v.logger.Warn("sight carried no entity id", "class", desc.Class())
		return nil
	}

	e, existed := v.entities[id]
	firstSight := !existed
	if !existed {
		e = newEntity(v, id)
		e.Visible = true
		e.suppressOwnSignals = true
		v.entities[id] = e
	}
	if recentlyCreated {
		e.RecentlyCreated = true
	}

	if typeName := desc.TypeName(); typeName != "" {
		info := v.types.GetByName(typeName)
		if info.Bad {
			info = v.types.Anonymous()
		}
		e.Type = info
	}

	if containsAttr, ok := desc.Attr("contains"); ok {
		if list, ok := containsAttr.AsList(); ok {
			for _, item := range list {
				if childID, ok := item.ExtractEntityID(); ok {
					v.ensureStub(childID)
				}
			}
		}
	}

	var locValue op.Element
	hasLoc := false
	e.Update(func() {
		for name, value := range desc.Attrs() {
			switch name {
			case "id", "contains", "parents", "objtype":
				continue
			case "loc":
				locValue = value
				hasLoc = true
			default:
				e.SetProperty(name, value)
			}
		}
		if hasLoc {
			e.SetProperty("loc", locValue)
		}
	})

	if firstSight {
		e.suppressOwnSignals = false
	}

	v.resolvePendingParents(id, e)
	if v.router != nil {
		v.router.Fire("entity-seen:" + id)
	}

	return e
}

// ensureStub returns the entity for id, creating an empty placeholder if
// it is not yet known — used when a sighted entity's "contains" list
// names a child that has not itself been sighted yet.
func (v *View) ensureStub(id string) *Entity {
	if e, ok := v.entities[id]; ok {
		return e
	}
	e := newEntity(v, id)
	e.Visible = true
	v.entities[id] = e
	return e
}

// DisappearEntity removes an entity from the view entirely (a "delete"
// operation). Children are detached — their parent becomes nil — but
// not destroyed, since the view is authoritative for entity lifetime,
// not the containment tree.
func (v *View) DisappearEntity(id string) {
	e, ok := v.entities[id]
	if !ok {
		return
	}
	wasVisible := e.EffectiveVisible()
	if e.Parent != nil {
		v.removeChild(e.Parent, e)
	}
	for _, child := range e.Children {
		child.Parent = nil
	}
	delete(v.entities, id)
	if wasVisible {
		e.OnVisibilityChanged.Emit(false)
	}
}

// HandleTalk delivers a sound-of-talk to the speaking entity's Say
// signal.
func (v *View) HandleTalk(entityID string, arg *op.Op) {
	if e, ok := v.entities[entityID]; ok {
		e.OnSay.Emit(arg)
	}
}

// HandleImaginary delivers a sound-of-imaginary (an emote) to the
// acting entity's Emote signal.
func (v *View) HandleImaginary(entityID string, description string) {
	if e, ok := v.entities[entityID]; ok {
		e.OnEmote.Emit(description)
	}
}

// HandleActed delivers a sight-of-op whose wrapped operation is a
// generic action to the entity's Acted signal.
func (v *View) HandleActed(entityID string, wrapped *op.Op) {
	if e, ok := v.entities[entityID]; ok {
		e.OnActed.Emit(ActedEvent{Op: wrapped, Type: v.types.GetForOp(wrapped)})
	}
}

// HandleHit delivers a sight-of-op wrapping a "hit" to the entity's Hit
// signal.
func (v *View) HandleHit(entityID string, wrapped *op.Op) {
	if e, ok := v.entities[entityID]; ok {
		e.OnHit.Emit(ActedEvent{Op: wrapped, Type: v.types.GetForOp(wrapped)})
	}
}

// HandleNoise delivers a sound-of-op that is neither talk nor imaginary
// to the entity's Noise signal.
func (v *View) HandleNoise(entityID string, wrapped *op.Op) {
	if e, ok := v.entities[entityID]; ok {
		e.OnNoise.Emit(ActedEvent{Op: wrapped, Type: v.types.GetForOp(wrapped)})
	}
}

// RouterFunc builds the view router (§4.5 priority 4): last-resort
// handling for sight, appear, disappear, delete, and sound operations
// scoped to entities not addressed to any avatar.
func (v *View) RouterFunc() router.Func {
	return func(o *op.Op) (router.Result, string) {
		switch o.Class() {
		case "sight":
			arg, ok := o.FirstArg()
			if !ok {
				return router.Ignored, ""
			}
			if arg.ID() != "" {
				v.SightEntity(arg, false)
				return router.Handled, ""
			}
			if ok, missing := v.types.VerifyObjectTypes(arg); !ok {
				return router.WillRedispatch, "type-bound:" + missing
			}
			switch arg.Class() {
			case "hit":
				v.HandleHit(o.From(), arg)
			default:
				v.HandleActed(o.From(), arg)
			}
			return router.Handled, ""
		case "appear":
			if e, ok := v.entities[o.From()]; ok {
				v.SetVisible(e, true)
			}
			return router.Handled, ""
		case "disappear":
			if e, ok := v.entities[o.From()]; ok {
				v.SetVisible(e, false)
			}
			return router.Handled, ""
		case "delete":
			v.DisappearEntity(o.From())
			return router.Handled, ""
		case "sound":
			arg, ok := o.FirstArg()
			if !ok {
				return router.Ignored, ""
			}
			switch arg.Class() {
			case "talk":
				v.HandleTalk(o.From(), arg)
			case "imaginary":
				desc := ""
				if d, ok := arg.Attr("description"); ok {
					desc, _ = d.AsString()
				}
				v.HandleImaginary(o.From(), desc)
			default:
				v.HandleNoise(o.From(), arg)
			}
			return router.Handled, ""
		default:
			return router.Ignored, ""
		}
	}
}

// PredictedPosition returns e's position integrated to time t (§4.7):
// linear plus quadratic acceleration term, scaled by SimulationSpeed.
// Not-moving entities return their stored pose unchanged.
func (v *View) PredictedPosition(e *Entity, t time.Time) Vector3 {
	if !e.Moving {
		return e.Position
	}
	dt := t.Sub(e.LastPosTime).Seconds() * v.SimulationSpeed
	pos := e.Position
	if e.Velocity != nil {
		pos = pos.Add(e.Velocity.Scale(dt))
	}
	if e.Acceleration != nil && !e.Acceleration.IsZero() {
		pos = pos.Add(e.Acceleration.Scale(0.5 * dt * dt))
	}
	return pos
}

// PredictedVelocity returns e's velocity integrated to time t.
func (v *View) PredictedVelocity(e *Entity, t time.Time) Vector3 {
	if e.Velocity == nil {
		return Vector3{}
	}
	if !e.Moving || e.Acceleration == nil || e.Acceleration.IsZero() {
		return *e.Velocity
	}
	dt := t.Sub(e.LastPosTime).Seconds() * v.SimulationSpeed
	return e.Velocity.Add(e.Acceleration.Scale(dt))
}

// PredictedOrientation returns e's orientation integrated to time t:
// the stored orientation composed with the rotation implied by angular
// velocity and magnitude. Orientation is unchanged when angular
// magnitude is zero or unset.
func (v *View) PredictedOrientation(e *Entity, t time.Time) Quaternion {
	if !e.Moving || e.AngularVelocity == nil || e.AngularMag == nil || *e.AngularMag == 0 {
		return e.Orientation
	}
	axis := e.AngularVelocity.Normalized()
	if axis.IsZero() {
		return e.Orientation
	}
	dt := t.Sub(e.LastOrientationTime).Seconds() * v.SimulationSpeed
	delta := FromAxisAngle(axis, *e.AngularMag*dt)
	return e.Orientation.Multiply(delta)
}
