// Package typeinfo implements the Type Service (C4): lazy, asynchronous
// resolution of server-declared type descriptors into a local type
// lattice with property inheritance and a bound/unbound readiness state.
//
// A handful of builtins (root, root-entity, root-operation, anonymous,
// plus a configurable seed list) are defined permanently bound at
// startup without a network round trip, matching the original source's
// own defineBuiltin calls. Everything else starts as an unbound
// placeholder the moment it is first referenced and transitions to
// bound only once its own descriptor and all of its parents' descriptors
// have arrived.
package typeinfo

import (
	"log/slog"

	"github.com/worldforge-go/atlasclient/bus"
	"github.com/worldforge-go/atlasclient/op"
	"github.com/worldforge-go/atlasclient/router"
)

// Info is a locally cached type descriptor.
type Info struct {
	Name    string
	Parents []string

	// Ancestors is the transitive closure of Parents, populated only
	// once Bound is true.
	Ancestors map[string]struct{}

	// Defaults is the merged default property map — own declared
	// defaults overlaid on the union of parent defaults, nearer
	// ancestors winning — populated only once Bound is true.
	Defaults map[string]op.Element

	Bound bool
	Bad   bool

	ownDefaults map[string]op.Element
	children    []string // names of types that declared this as a parent
}

// Sender abstracts issuing an operation onto the wire; the Transport
// collaborator that actually owns the connection is out of scope for
// this module.
type Sender interface {
	Send(o *op.Op)
}

// Service is the Type Service. It is not safe for concurrent use.
type Service struct {
	logger *slog.Logger
	router *router.Router
	sender Sender

	types map[string]*Info

	// Bound fires exactly once per type when it transitions from
	// unbound to bound. Bad fires when the server reports a type does
	// not exist.
	Bound *bus.Bus[*Info]
	Bad   *bus.Bus[*Info]

	anonymous *Info
}

// New constructs a Service with the unconditional builtins (root,
// root-entity, root-operation, anonymous) plus any additional seedTypes
// bound immediately as children of root-entity. sender is used to issue
// GET requests for unknown types; r supplies serial allocation and the
// pending-request table used to correlate INFO/ERROR replies.
func New(logger *slog.Logger, r *router.Router, sender Sender, seedTypes []string) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		logger: logger,
		router: r,
		sender: sender,
		types:  make(map[string]*Info),
		Bound:  bus.New[*Info](),
		Bad:    bus.New[*Info](),
	}
	s.defineBuiltin("root", nil)
	s.defineBuiltin("root-entity", []string{"root"})
	s.defineBuiltin("root-operation", []string{"root"})
	s.anonymous = s.defineBuiltin("anonymous", []string{"root-entity"})
	for _, name := range seedTypes {
		s.defineBuiltin(name, []string{"root-entity"})
	}
	return s
}

func (s *Service) defineBuiltin(name string, parentNames []string) *Info {
	parents := s.resolveInfos(parentNames)
	info := &Info{
		Name:        name,
		Parents:     parentNames,
		Bound:       true,
		Ancestors:   ancestorsOf(parents),
		ownDefaults: map[string]op.Element{},
		Defaults:    map[string]op.Element{},
	}
	s.types[name] = info
	s.linkChildren(info, parents)
	return info
}

func (s *Service) resolveInfos(names []string) []*Info {
	infos := make([]*Info, 0, len(names))
	for _, n := range names {
		if info, ok := s.types[n]; ok {
			infos = append(infos, info)
		}
	}
	return infos
}

func (s *Service) linkChildren(child *Info, parents []*Info) {
	for _, p := range parents {
		if !containsStr(p.children, child.Name) {
			p.children = append(p.children, child.Name)
		}
	}
}

// Anonymous returns the builtin "anonymous" type, substituted for an
// entity whose declared type turned out bad rather than leaving it
// permanently typeless.
func (s *Service) Anonymous() *Info {
	return s.anonymous
}

// FindByName returns the cached type, if any, issuing no request for an
// unknown name.
func (s *Service) FindByName(name string) (*Info, bool) {
	info, ok := s.types[name]
	return info, ok
}

// GetByName returns the type reference for name, creating an unbound
// placeholder and issuing a GET request if name has never been seen.
func (s *Service) GetByName(name string) *Info {
	if info, ok := s.types[name]; ok {
		return info
	}
	info := &Info{Name: name}
	s.types[name] = info
	s.requestType(name)
	return info
}

// GetForOp returns the type for o's declared type name (its first
// parent), equivalent to GetByName of that name.
func (s *Service) GetForOp(o *op.Op) *Info {
	return s.GetByName(o.TypeName())
}

func (s *Service) requestType(name string) {
	if s.sender == nil || s.router == nil {
		return
	}
	serial := s.router.NextSerial()
	get := op.New("get").SetSerial(serial).
		SetArgs([]op.Op{*op.New("meta").SetID(name)})
	s.router.AddPending(serial, router.PendingTypeLookup,
		s.handleInfoReply(name), s.handleErrorReply(name))
	s.sender.Send(get)
}

func (s *Service) handleInfoReply(requestedName string) func(reply *op.Op) {
	return func(reply *op.Op) {
		desc, ok := reply.FirstArg()
		if !ok {
			s.logger.Warn("type info reply carried no argument", "type", requestedName)
			return
		}
		s.applyDescriptor(desc, requestedName)
	}
}

func (s *Service) handleErrorReply(name string) func(reply *op.Op) {
	return func(reply *op.Op) {
		info, ok := s.types[name]
		if !ok {
			info = &Info{Name: name}
			s.types[name] = info
		}
		info.Bad = true
		s.logger.Warn("type marked bad by server", "type", name)
		s.Bad.Emit(info)
	}
}

// applyDescriptor decodes a type descriptor (an INFO reply argument or a
// locally loaded record) and attempts to bind it and any back-referenced
// children that are now ready.
func (s *Service) applyDescriptor(desc *op.Op, fallbackName string) {
	name := desc.ID()
	if name == "" {
		name = fallbackName
	}
	info, ok := s.types[name]
	if !ok {
		info = &Info{Name: name}
		s.types[name] = info
	}
	if info.Bound {
		// Post-bind parent change is forbidden; a redelivered/duplicate
		// descriptor for an already-bound type is a no-op.
		return
	}
	info.Parents = desc.Parents()
	info.ownDefaults = defaultsFromAttrs(desc)

	parents := make([]*Info, 0, len(info.Parents))
	for _, pname := range info.Parents {
		parent := s.GetByName(pname)
		parents = append(parents, parent)
	}
	s.linkChildren(info, parents)

	s.tryBind(info)
}

func (s *Service) tryBind(info *Info) {
	if info.Bound || info.Bad {
		return
	}
	parents := make([]*Info, 0, len(info.Parents))
	for _, pname := range info.Parents {
		p, ok := s.types[pname]
		if !ok || !p.Bound {
			return
		}
		parents = append(parents, p)
	}

	info.Ancestors = ancestorsOf(parents)
	info.Defaults = mergeDefaults(info.ownDefaults, parents)
	info.Bound = true

	s.logger.Debug("type bound", "type", info.Name)
	s.Bound.Emit(info)

	// Cascade: re-evaluate every type that named this one as a parent,
	// in the order it was first linked — this walks the dependency DAG
	// topologically since a child can only now become ready.
	for _, childName := range info.children {
		if child, ok := s.types[childName]; ok {
			s.tryBind(child)
		}
	}
}

// VerifyObjectTypes reports whether every type referenced by o — its own
// declared type, and for operations each argument's declared type — is
// currently bound. If it returns false, missingType names the first
// unbound type found and a lookup for it has been ensured in flight
// (via GetByName); callers use "type-bound:<missingType>" as this op's
// redispatch trigger key so that Service.Bound firing for that name
// (relayed by the caller into the router's Fire) retries the op exactly
// once.
func (s *Service) VerifyObjectTypes(o *op.Op) (ok bool, missingType string) {
	if name := o.TypeName(); name != "" && !s.isBound(name) {
		s.GetByName(name)
		return false, name
	}
	for _, arg := range o.Args() {
		if name := arg.TypeName(); name != "" && !s.isBound(name) {
			s.GetByName(name)
			return false, name
		}
	}
	return true, ""
}

func (s *Service) isBound(name string) bool {
	info, ok := s.types[name]
	return ok && info.Bound
}

func ancestorsOf(parents []*Info) map[string]struct{} {
	out := make(map[string]struct{}, len(parents))
	for _, p := range parents {
		out[p.Name] = struct{}{}
		for a := range p.Ancestors {
			out[a] = struct{}{}
		}
	}
	return out
}

func mergeDefaults(own map[string]op.Element, parents []*Info) map[string]op.Element {
	merged := make(map[string]op.Element, len(own))
	for k, v := range own {
		merged[k] = v
	}
	for _, p := range parents {
		for k, v := range p.Defaults {
			if _, exists := merged[k]; !exists {
				merged[k] = v
			}
		}
	}
	return merged
}

var reservedDescriptorAttrs = map[string]struct{}{
	"parents": {},
	"id":      {},
	"objtype": {},
}

func defaultsFromAttrs(desc *op.Op) map[string]op.Element {
	attrs := desc.Attrs()
	out := make(map[string]op.Element, len(attrs))
	for k, v := range attrs {
		if _, reserved := reservedDescriptorAttrs[k]; reserved {
			continue
		}
		out[k] = v
	}
	return out
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
