// Package op implements the Codec Boundary (C3): the opaque operation
// value the rest of the core pattern-matches on. Wire-level encode/decode
// is explicitly out of scope for this module — a Codec collaborator is
// assumed to produce and consume Op values — so this package only
// supplies the in-memory shape and accessors spec.md §4.3 names: class,
// serial, refno, from, to, args, and a dynamic-cast-style class test.
//
// Atlas Objects in the wild has RootOperation IS-A RootEntity IS-A Root;
// this package models that with one struct rather than three, since a
// real codec library would hand the core a value already shaped this
// way. Entity descriptors (sights, create-replies) and type descriptors
// (info/get) are both represented as Op — the field set is a superset
// covering both uses, which is how the original source treats them too
// (Atlas::Objects::Root carries both op and entity concerns).
package op

// Element is a single Atlas value: a string, integer, float, bool, list,
// map, or an entity-reference ({"$eid": "..."} or a bare string id). It
// is the argument/attribute payload type carried by Op.
type Element struct {
	kind elementKind
	str  string
	num  float64
	b    bool
	list []Element
	m    map[string]Element
}

type elementKind int

const (
	kindNone elementKind = iota
	kindString
	kindInt
	kindFloat
	kindBool
	kindList
	kindMap
)

// None is the zero Element, representing an absent/null value.
var None = Element{}

// IsNone reports whether e carries no value.
func (e Element) IsNone() bool { return e.kind == kindNone }

// StringElement wraps a string value.
func StringElement(s string) Element { return Element{kind: kindString, str: s} }

// IntElement wraps an integer value.
func IntElement(n int64) Element { return Element{kind: kindInt, num: float64(n)} }

// FloatElement wraps a floating-point value.
func FloatElement(f float64) Element { return Element{kind: kindFloat, num: f} }

// BoolElement wraps a boolean value.
func BoolElement(b bool) Element { return Element{kind: kindBool, b: b} }

// ListElement wraps an ordered list of elements.
func ListElement(items []Element) Element { return Element{kind: kindList, list: items} }

// MapElement wraps a string-keyed map of elements.
func MapElement(m map[string]Element) Element { return Element{kind: kindMap, m: m} }

// AsString returns e's string value and whether e held one.
func (e Element) AsString() (string, bool) {
	if e.kind != kindString {
		return "", false
	}
	return e.str, true
}

// AsInt returns e's integer value and whether e held a number.
func (e Element) AsInt() (int64, bool) {
	if e.kind != kindInt && e.kind != kindFloat {
		return 0, false
	}
	return int64(e.num), true
}

// AsFloat returns e's float value and whether e held a number.
func (e Element) AsFloat() (float64, bool) {
	if e.kind != kindInt && e.kind != kindFloat {
		return 0, false
	}
	return e.num, true
}

// AsBool returns e's boolean value and whether e held one.
func (e Element) AsBool() (bool, bool) {
	if e.kind != kindBool {
		return false, false
	}
	return e.b, true
}

// AsList returns e's list value and whether e held one.
func (e Element) AsList() ([]Element, bool) {
	if e.kind != kindList {
		return nil, false
	}
	return e.list, true
}

// AsMap returns e's map value and whether e held one.
func (e Element) AsMap() (map[string]Element, bool) {
	if e.kind != kindMap {
		return nil, false
	}
	return e.m, true
}

// ExtractEntityID decodes an entity-reference element, which the wire
// protocol allows to appear either as a bare string id or as a
// {"$eid": "..."} map (older servers use the latter for weak references
// inside task and other attribute payloads). It returns false if e is
// neither shape.
func (e Element) ExtractEntityID() (string, bool) {
	if s, ok := e.AsString(); ok {
		return s, true
	}
	if m, ok := e.AsMap(); ok {
		if eid, ok := m["$eid"]; ok {
			return eid.AsString()
		}
	}
	return "", false
}

// Op is an Atlas operation, entity description, or type descriptor —
// the core does not distinguish these at the wire-accessor level; callers
// that care inspect Class()/Parents().
type Op struct {
	id      string
	class   string
	parents []string
	serial  *int64
	refno   *int64
	from    string
	to      string
	args    []Op
	attrs   map[string]Element
}

// New constructs an Op of the given class with no id, serial, or refno
// set. Use the chainable Set* methods to build one up.
func New(class string) *Op {
	return &Op{class: class, attrs: make(map[string]Element)}
}

// ID returns the op's own entity/object id, if any (set for
// sight/create-reply payloads; usually empty for transient ops like GET).
func (o *Op) ID() string { return o.id }

// SetID sets the op's id.
func (o *Op) SetID(id string) *Op { o.id = id; return o }

// Class returns the op's class name (e.g. "sight", "info", "get").
func (o *Op) Class() string { return o.class }

// Parents returns the op's declared parent list, used by the Type
// Service to resolve the type of an operation or entity description (the
// first element is its immediate type name).
func (o *Op) Parents() []string { return o.parents }

// SetParents sets the op's declared parent list.
func (o *Op) SetParents(parents []string) *Op { o.parents = parents; return o }

// TypeName returns the op's declared type name — the first parent, or
// empty if none is declared.
func (o *Op) TypeName() string {
	if len(o.parents) == 0 {
		return ""
	}
	return o.parents[0]
}

// Serial returns the op's serial number and whether one was set.
func (o *Op) Serial() (int64, bool) {
	if o.serial == nil {
		return 0, false
	}
	return *o.serial, true
}

// SetSerial assigns a serial number.
func (o *Op) SetSerial(serial int64) *Op { o.serial = &serial; return o }

// Refno returns the serial this op is replying to, and whether one was
// set.
func (o *Op) Refno() (int64, bool) {
	if o.refno == nil {
		return 0, false
	}
	return *o.refno, true
}

// SetRefno assigns the refno (in-reply-to serial).
func (o *Op) SetRefno(refno int64) *Op { o.refno = &refno; return o }

// From returns the originating entity id.
func (o *Op) From() string { return o.from }

// SetFrom sets the originating entity id.
func (o *Op) SetFrom(id string) *Op { o.from = id; return o }

// To returns the destination entity id.
func (o *Op) To() string { return o.to }

// SetTo sets the destination entity id.
func (o *Op) SetTo(id string) *Op { o.to = id; return o }

// Args returns the op's argument list — nested operations for op-of-op
// wrapping (sight-of-op, sound-of-op) or entity/type descriptions for
// sight/info.
func (o *Op) Args() []Op { return o.args }

// SetArgs sets the op's argument list.
func (o *Op) SetArgs(args []Op) *Op { o.args = args; return o }

// FirstArg returns the first argument and whether one exists. Most
// single-argument ops (sight, info, error) only ever carry one.
func (o *Op) FirstArg() (*Op, bool) {
	if len(o.args) == 0 {
		return nil, false
	}
	return &o.args[0], true
}

// Attr returns a named attribute (a property on an entity/type
// description, e.g. "pos", "tasks", "parents" decoded as elements) and
// whether it was present.
func (o *Op) Attr(name string) (Element, bool) {
	if o.attrs == nil {
		return Element{}, false
	}
	v, ok := o.attrs[name]
	return v, ok
}

// SetAttr sets a named attribute.
func (o *Op) SetAttr(name string, value Element) *Op {
	if o.attrs == nil {
		o.attrs = make(map[string]Element)
	}
	o.attrs[name] = value
	return o
}

// Attrs returns the full attribute map. Callers must not mutate the
// returned map.
func (o *Op) Attrs() map[string]Element { return o.attrs }

// IsA reports whether className appears in o's declared parent list —
// the core's stand-in for a dynamic cast to a concrete operation class,
// since the parent list itself is the lattice position (§4.3).
func (o *Op) IsA(className string) bool {
	for _, p := range o.parents {
		if p == className {
			return true
		}
	}
	return false
}
