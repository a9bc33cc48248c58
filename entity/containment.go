package entity

import "github.com/worldforge-go/atlasclient/op"

// applyLocation implements the "loc" native property handler (§4.6
// Containment). An unknown target id puts e into parent-wait: it
// becomes invisible, is detached from any old parent, and its parent
// pointer is cleared, without emitting LocationChanged — matching the
// original source, which only emits that signal on the known-parent
// path. A known target runs setLocation, which is a no-op if it is
// already e's parent.
func (v *View) applyLocation(e *Entity, value op.Element) {
	locID, ok := value.ExtractEntityID()
	if !ok {
		v.logger.Warn("invalid loc value", "entity", e.ID)
		return
	}
	target, known := v.entities[locID]
	if !known {
		v.enterParentWait(e, locID)
		return
	}
	v.setLocation(e, target)
}

// enterParentWait detaches e from any current parent and marks it as
// waiting for locID to be sighted. The waiting child id is indexed under
// locID so that SightEntity can resolve it the moment that parent
// appears — a generalization beyond the original source, which only
// resolves children explicitly named in the newly-sighted parent's own
// "contains" list; this index additionally catches children that
// declared the parent via their own "loc" before the parent was known.
func (v *View) enterParentWait(e *Entity, locID string) {
	wasVisible := e.EffectiveVisible()
	e.WaitingForParentBind = true
	if e.Parent != nil {
		v.removeChild(e.Parent, e)
	}
	e.Parent = nil
	v.pendingParentWait[locID] = append(v.pendingParentWait[locID], e.ID)
	if wasVisible && !e.suppressOwnSignals {
		e.OnVisibilityChanged.Emit(false)
	}
}

// setLocation reassigns e's parent to newParent. A no-op (no signals) if
// newParent is already e's parent, per the round-trip property that
// setting loc to the current parent changes nothing.
func (v *View) setLocation(e *Entity, newParent *Entity) {
	if e.Parent == newParent {
		return
	}
	wasVisible := e.EffectiveVisible()
	oldParent := e.Parent

	if oldParent != nil {
		v.removeChild(oldParent, e)
	}
	e.Parent = newParent
	e.WaitingForParentBind = newParent.WaitingForParentBind
	v.addChild(newParent, e)

	if !e.suppressOwnSignals {
		e.OnLocationChanged.Emit(oldParent)
	}
	v.updateCalculatedVisibility(e, wasVisible)
}

// resolveParentWait is called once locID (a previously unknown parent)
// has just been sighted, for every child that had been waiting on it.
// Per scenario 2: it clears the wait, links containment, and fires
// ChildAdded/VisibilityChanged — no LocationChanged, since the parent
// pointer was never meaningfully assigned while waiting.
func (v *View) resolveParentWait(childID string, parent *Entity) {
	child, ok := v.entities[childID]
	if !ok || !child.WaitingForParentBind {
		return
	}
	child.WaitingForParentBind = false
	child.Parent = parent
	v.addChild(parent, child)
	v.updateCalculatedVisibility(child, false)
}

func (v *View) resolvePendingParents(parentID string, parent *Entity) {
	waiting := v.pendingParentWait[parentID]
	if len(waiting) == 0 {
		return
	}
	delete(v.pendingParentWait, parentID)
	for _, childID := range waiting {
		v.resolveParentWait(childID, parent)
	}
}

func (v *View) addChild(parent, child *Entity) {
	parent.Children = append(parent.Children, child)
	parent.OnChildAdded.Emit(child)
}

func (v *View) removeChild(parent, child *Entity) {
	for i, c := range parent.Children {
		if c == child {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			parent.OnChildRemoved.Emit(child)
			return
		}
	}
	v.logger.Error("invariant violation: removing a child that is not its parent's child",
		"parent", parent.ID, "child", child.ID)
}

// SetVisible sets e's own local visibility flag, forcing it false while
// e is waiting for its parent to bind, and propagating the transition
// through updateCalculatedVisibility.
func (v *View) SetVisible(e *Entity, visible bool) {
	if e.WaitingForParentBind {
		visible = false
	}
	if e.Visible == visible {
		return
	}
	wasVisible := e.EffectiveVisible()
	e.Visible = visible
	v.updateCalculatedVisibility(e, wasVisible)
}

// updateCalculatedVisibility recomputes e's effective visibility against
// wasVisible (e's effective visibility before whatever mutation the
// caller just made) and, on a change, propagates deterministically
// through the subtree: appearance fires the parent first then recurses,
// disappearance recurses first then fires the parent (§4.6).
func (v *View) updateCalculatedVisibility(e *Entity, wasVisible bool) {
	nowVisible := e.EffectiveVisible()
	if nowVisible == wasVisible {
		return
	}

	if nowVisible {
		if !e.suppressOwnSignals {
			e.OnVisibilityChanged.Emit(true)
		}
		for _, child := range e.Children {
			childWasVisible := wasVisible && child.Visible
			v.updateCalculatedVisibility(child, childWasVisible)
		}
		return
	}

	for _, child := range e.Children {
		childWasVisible := wasVisible && child.Visible
		v.updateCalculatedVisibility(child, childWasVisible)
	}
	if !e.suppressOwnSignals {
		e.OnVisibilityChanged.Emit(false)
	}
}
