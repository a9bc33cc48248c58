// Package entity implements the Entity View (C6), Entity Motion (C7),
// and Task Subrecord (C8) components: the local replica of the server's
// entity graph, its containment tree and visibility propagation,
// batched property delivery, time-integrated motion prediction, and
// per-entity task reconciliation.
package entity

import (
	"time"

	"github.com/worldforge-go/atlasclient/bus"
	"github.com/worldforge-go/atlasclient/op"
	"github.com/worldforge-go/atlasclient/typeinfo"
)

// ActedEvent is the payload for OnActed/OnHit/OnNoise: a sight-of-op or
// sound-of-op whose wrapped operation carries its own declared type.
type ActedEvent struct {
	Op   *op.Op
	Type *typeinfo.Info
}

// Entity is one node of the local entity graph.
type Entity struct {
	ID   string
	Type *typeinfo.Info

	Parent   *Entity
	Children []*Entity

	Properties map[string]op.Element

	// Visible is the entity's own locally-set visibility flag, before
	// parent/parent-wait are factored in. Use EffectiveVisible for the
	// value actually observed by consumers.
	Visible              bool
	WaitingForParentBind bool

	// suppressOwnSignals is set while an entity is being constructed
	// from its first sight: the initial visibility/location a freshly
	// allocated entity lands on is not a live transition anyone
	// observed, so OnVisibilityChanged/OnLocationChanged stay quiet
	// until construction finishes.
	suppressOwnSignals bool

	RecentlyCreated bool

	Position            Vector3
	Velocity            *Vector3
	Acceleration        *Vector3
	Orientation         Quaternion
	AngularVelocity     *Vector3
	AngularMag          *float64
	LastPosTime         time.Time
	LastOrientationTime time.Time
	Moving              bool

	BBox  *BBox
	Scale Vector3

	Tasks map[string]*Task

	updateNesting  int
	pendingChanges map[string]struct{}

	OnChanged           *bus.Bus[[]string]
	OnMoved             *bus.Bus[struct{}]
	OnMoving            *bus.Bus[bool]
	OnLocationChanged   *bus.Bus[*Entity]
	OnVisibilityChanged *bus.Bus[bool]
	OnChildAdded        *bus.Bus[*Entity]
	OnChildRemoved      *bus.Bus[*Entity]
	OnTaskAdded         *bus.Bus[*Task]
	OnTaskRemoved       *bus.Bus[*Task]
	OnSay               *bus.Bus[*op.Op]
	OnEmote             *bus.Bus[string]
	OnActed             *bus.Bus[ActedEvent]
	OnHit               *bus.Bus[ActedEvent]
	OnNoise             *bus.Bus[ActedEvent]

	view *View
}

func newEntity(v *View, id string) *Entity {
	return &Entity{
		ID:         id,
		Properties: make(map[string]op.Element),
		Scale:      Vector3{X: 1, Y: 1, Z: 1},
		Tasks:      make(map[string]*Task),

		OnChanged:           bus.New[[]string](),
		OnMoved:             bus.New[struct{}](),
		OnMoving:            bus.New[bool](),
		OnLocationChanged:   bus.New[*Entity](),
		OnVisibilityChanged: bus.New[bool](),
		OnChildAdded:        bus.New[*Entity](),
		OnChildRemoved:      bus.New[*Entity](),
		OnTaskAdded:         bus.New[*Task](),
		OnTaskRemoved:       bus.New[*Task](),
		OnSay:               bus.New[*op.Op](),
		OnEmote:             bus.New[string](),
		OnActed:             bus.New[ActedEvent](),
		OnHit:               bus.New[ActedEvent](),
		OnNoise:             bus.New[ActedEvent](),

		view: v,
	}
}

// EffectiveVisible reports the entity's visibility as actually observed:
// its own flag, and-ed with its parent's effective visibility, and
// forced false while waiting for an unsighted parent to bind (P2).
func (e *Entity) EffectiveVisible() bool {
	if e.WaitingForParentBind {
		return false
	}
	if e.Parent == nil {
		return e.Visible
	}
	return e.Visible && e.Parent.EffectiveVisible()
}

// TopEntity returns the root of e's containment chain, or nil while any
// ancestor (including e itself) is waiting for its parent to bind.
func (e *Entity) TopEntity() *Entity {
	cur := e
	for {
		if cur.WaitingForParentBind {
			return nil
		}
		if cur.Parent == nil {
			return cur
		}
		cur = cur.Parent
	}
}

// IsAncestorTo reports whether e is an ancestor of other along the
// containment chain.
func (e *Entity) IsAncestorTo(other *Entity) bool {
	for cur := other.Parent; cur != nil; cur = cur.Parent {
		if cur == e {
			return true
		}
	}
	return false
}

// Property returns an instance property, falling back to the bound
// type's default for the same name.
func (e *Entity) Property(name string) (op.Element, bool) {
	if v, ok := e.Properties[name]; ok {
		return v, true
	}
	if e.Type != nil && e.Type.Bound {
		if v, ok := e.Type.Defaults[name]; ok {
			return v, true
		}
	}
	return op.Element{}, false
}

// HasProperty reports whether name is set either on the instance or via
// a type default.
func (e *Entity) HasProperty(name string) bool {
	_, ok := e.Property(name)
	return ok
}

var reservedInstanceProps = map[string]struct{}{
	"id":       {},
	"contains": {},
}

// SetProperty is the single write path for an entity's instance
// properties (§4.6). It begins a batched update, writes the instance
// map, dispatches to the small set of native handlers, appends the name
// to the pending-changes set, and ends the update. Writing the reserved
// names "id" and "contains" is rejected.
func (e *Entity) SetProperty(name string, value op.Element) {
	if _, reserved := reservedInstanceProps[name]; reserved {
		e.view.logger.Warn("rejected write to reserved property", "entity", e.ID, "property", name)
		return
	}
	e.beginUpdate()
	e.Properties[name] = value
	e.applyNativeHandler(name, value)
	e.addToUpdate(name)
	e.endUpdate()
}

func (e *Entity) applyNativeHandler(name string, value op.Element) {
	switch name {
	case "pos":
		if v, ok := decodeVector3(value); ok {
			e.Position = v
		}
	case "velocity":
		if v, ok := decodeVector3(value); ok {
			e.Velocity = &v
		}
	case "accel":
		if v, ok := decodeVector3(value); ok {
			e.Acceleration = &v
		}
	case "orientation":
		if q, ok := decodeQuaternion(value); ok {
			e.Orientation = q
		}
	case "angular":
		if v, ok := decodeVector3(value); ok {
			e.AngularVelocity = &v
			mag := v.Length()
			e.AngularMag = &mag
		}
	case "bbox":
		if b, ok := decodeBBox(value); ok {
			e.BBox = &b
		}
	case "scale":
		if v, ok := decodeVector3(value); ok {
			e.Scale = v
		}
	case "loc":
		e.view.applyLocation(e, value)
	case "tasks":
		e.reconcileTasks(value)
	case "name":
		// No structural consequence beyond the instance map write above;
		// kept as an explicit case so the dispatch table documents every
		// name §4.6 names.
	case "stamp":
		// Timestamp metadata only; LastPosTime/LastOrientationTime are
		// derived from endUpdate's own batching, not from this field.
	}
}

func decodeVector3(e op.Element) (Vector3, bool) {
	list, ok := e.AsList()
	if !ok || len(list) != 3 {
		return Vector3{}, false
	}
	x, okx := list[0].AsFloat()
	y, oky := list[1].AsFloat()
	z, okz := list[2].AsFloat()
	if !okx || !oky || !okz {
		return Vector3{}, false
	}
	return Vector3{X: x, Y: y, Z: z}, true
}

func decodeQuaternion(e op.Element) (Quaternion, bool) {
	list, ok := e.AsList()
	if !ok || len(list) != 4 {
		return Quaternion{}, false
	}
	w, okw := list[0].AsFloat()
	x, okx := list[1].AsFloat()
	y, oky := list[2].AsFloat()
	z, okz := list[3].AsFloat()
	if !okw || !okx || !oky || !okz {
		return Quaternion{}, false
	}
	return Quaternion{W: w, X: x, Y: y, Z: z}, true
}

func decodeBBox(e op.Element) (BBox, bool) {
	list, ok := e.AsList()
	if !ok || len(list) != 6 {
		return BBox{}, false
	}
	minV, okMin := decodeVector3(op.ListElement(list[0:3]))
	maxV, okMax := decodeVector3(op.ListElement(list[3:6]))
	if !okMin || !okMax {
		return BBox{}, false
	}
	return BBox{Min: minV, Max: maxV}, true
}

// Update groups a sequence of SetProperty calls so they produce a single
// batched Changed/Moved/Moving notification instead of one per call —
// used whenever several properties arrive together (a full entity sight,
// a "move" operation touching pos and velocity at once).
func (e *Entity) Update(fn func()) {
	e.beginUpdate()
	fn()
	e.endUpdate()
}

func (e *Entity) beginUpdate() {
	if e.updateNesting == 0 {
		e.pendingChanges = make(map[string]struct{})
	}
	e.updateNesting++
}

func (e *Entity) addToUpdate(name string) {
	e.pendingChanges[name] = struct{}{}
}

var motionProperties = map[string]struct{}{
	"pos": {}, "velocity": {}, "orientation": {}, "angular": {},
}

// endUpdate fires the aggregate Changed signal once the nesting counter
// returns to zero (P5), then — if any motion-relevant property changed
// in this batch — refreshes whichever prediction timestamp its own
// property named (pos → lastPosTime, orientation → lastOrientationTime;
// a velocity- or angular-only batch touches neither), recomputes the
// moving flag (P6), and fires Moved once followed by Moving on an edge.
func (e *Entity) endUpdate() {
	e.updateNesting--
	if e.updateNesting > 0 {
		return
	}

	changedMotion := false
	for name := range e.pendingChanges {
		if _, ok := motionProperties[name]; ok {
			changedMotion = true
			break
		}
	}

	if len(e.pendingChanges) > 0 {
		names := make([]string, 0, len(e.pendingChanges))
		for name := range e.pendingChanges {
			names = append(names, name)
		}
		e.OnChanged.Emit(names)
	}

	if !changedMotion {
		return
	}

	now := time.Now()
	if _, ok := e.pendingChanges["pos"]; ok {
		e.LastPosTime = now
	}
	if _, ok := e.pendingChanges["orientation"]; ok {
		e.LastOrientationTime = now
	}

	wasMoving := e.Moving
	velocityActive := e.Velocity != nil && e.Velocity.LengthSquared() > 1e-3
	angularActive := e.AngularVelocity != nil && !e.AngularVelocity.IsZero()
	e.Moving = velocityActive || angularActive

	e.OnMoved.Emit(struct{}{})
	if e.Moving != wasMoving {
		e.OnMoving.Emit(e.Moving)
	}
}
