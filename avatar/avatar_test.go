package avatar

import (
	"testing"

	"github.com/worldforge-go/atlasclient/entity"
	"github.com/worldforge-go/atlasclient/op"
	"github.com/worldforge-go/atlasclient/router"
	"github.com/worldforge-go/atlasclient/typeinfo"
)

type fakeSender struct{}

func (fakeSender) Send(o *op.Op) {}

func newTestRig() (*router.Router, *entity.View) {
	r := router.New(nil, 16)
	types := typeinfo.New(nil, r, fakeSender{}, nil)
	v := entity.New(nil, types, r, 1.0)
	return r, v
}

func boundDesc(id string) *op.Op {
	return op.New("info").SetID(id).SetParents([]string{"root-entity"})
}

func TestAvatarClaimsSightAddressedToItself(t *testing.T) {
	r, v := newTestRig()
	a := New(nil, "char1", v, r, fakeSender{})

	sightOp := op.New("sight").SetTo("char1").SetArgs([]op.Op{*boundDesc("char1")})
	if result := r.Route(sightOp); result != router.Handled {
		t.Fatalf("expected avatar router to handle a sight addressed to itself, got %v", result)
	}
	if a.Entity == nil || a.Entity.ID != "char1" {
		t.Fatalf("expected the avatar to track its own entity")
	}
}

func TestAvatarIgnoresUnrelatedOps(t *testing.T) {
	r, v := newTestRig()
	r.Use("view", v.RouterFunc())
	New(nil, "char1", v, r, fakeSender{})

	sightOp := op.New("sight").SetTo("someone-else").SetArgs([]op.Op{*boundDesc("e9")})
	if result := r.Route(sightOp); result != router.Handled {
		t.Fatalf("expected the view router (next in chain) to pick up an unrelated sight")
	}
	if _, ok := v.Entity("e9"); !ok {
		t.Fatalf("expected the view to have sighted e9 via the fallback router")
	}
}

func TestAvatarInventoryChanged(t *testing.T) {
	r, v := newTestRig()
	a := New(nil, "char1", v, r, fakeSender{})

	var wielded *op.Op
	a.InventoryChanged.Subscribe(func(o *op.Op) { wielded = o })

	wieldOp := op.New("sight").SetTo("char1").
		SetArgs([]op.Op{*op.New("wield").SetAttr("item", op.StringElement("sword"))})
	if result := r.Route(wieldOp); result != router.Handled {
		t.Fatalf("expected the avatar router to handle a wield sight-of-op")
	}
	if wielded == nil {
		t.Fatalf("expected InventoryChanged to fire")
	}
}

func TestAvatarDeactivatedOnLogout(t *testing.T) {
	r, v := newTestRig()
	a := New(nil, "char1", v, r, fakeSender{})

	var deactivated bool
	a.Deactivated.Subscribe(func(struct{}) { deactivated = true })

	logoutOp := op.New("logout").SetTo("char1")
	if result := r.Route(logoutOp); result != router.Handled {
		t.Fatalf("expected the avatar router to handle its own logout")
	}
	if !deactivated {
		t.Fatalf("expected Deactivated to fire")
	}
}

func TestAvatarTopEntityWaitsOnUnsightedParent(t *testing.T) {
	r, v := newTestRig()
	a := New(nil, "char1", v, r, fakeSender{})

	charDesc := boundDesc("char1")
	charDesc.SetAttr("loc", op.StringElement("room1"))
	sightOp := op.New("sight").SetTo("char1").SetArgs([]op.Op{*charDesc})
	if result := r.Route(sightOp); result != router.Handled {
		t.Fatalf("expected avatar router to handle the sight, got %v", result)
	}
	if a.Entity == nil {
		t.Fatalf("expected the avatar to have tracked its own entity")
	}
	if top := a.TopEntity(); top != nil {
		t.Fatalf("expected TopEntity to be nil while room1 is unsighted, got %v", top)
	}

	roomSightOp := op.New("sight").SetTo("char1").SetArgs([]op.Op{*boundDesc("room1")})
	if result := r.Route(roomSightOp); result != router.Handled {
		t.Fatalf("expected avatar router to handle the room sight, got %v", result)
	}
	top := a.TopEntity()
	if top == nil || top.ID != "room1" {
		t.Fatalf("expected TopEntity to resolve to room1 once sighted, got %v", top)
	}
}

func TestAvatarCloseRemovesFromChain(t *testing.T) {
	r, v := newTestRig()
	a := New(nil, "char1", v, r, fakeSender{})
	a.Close()

	sightOp := op.New("sight").SetTo("char1").SetArgs([]op.Op{*boundDesc("char1")})
	r.Route(sightOp)
	if a.Entity != nil {
		t.Fatalf("expected no avatar router to pick up the op after Close")
	}
}
