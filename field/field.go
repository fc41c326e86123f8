// Package field implements the per-session typed field store: a fixed
// registry of field ids, each with a declared type and flags, and a
// per-session value slot for each. Registration happens once at init and
// is read-only thereafter; values accumulate per session as dissectors
// run.
package field

import (
	"net"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Type is the declared storage kind of a field.
type Type int

const (
	TypeInt Type = iota
	TypeIntArray
	TypeIntHash
	TypeString
	TypeStringArray
	TypeStringHash
	TypeIPHash
)

// Flag bits, combinable, mirroring the spec's COUNT / SORTED-COUNT /
// FORCE-UTF8 / HEADERS declarations.
type Flag int

const (
	FlagCount Flag = 1 << iota
	FlagSortedCount
	FlagForceUTF8
	FlagHeaders
)

// ID is an opaque small integer identifying a registered field.
type ID int

// Def is a field's compile-time declaration.
type Def struct {
	ID    ID
	Name  string
	Type  Type
	Flags Flag
}

// Registry is the append-only, process-wide set of field definitions.
// Safe to read concurrently after Init has finished registering fields;
// Define must not be called once any session has started using the
// registry.
type Registry struct {
	defs []Def
	byID map[ID]*Def
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[ID]*Def)}
}

// Define registers a field id with its type and flags. Re-defining an
// existing id with a different type panics: type never changes after
// registration.
func (r *Registry) Define(id ID, name string, typ Type, flags Flag) {
	if d, ok := r.byID[id]; ok {
		if d.Type != typ {
			panic("field: redefinition of " + name + " with a different type")
		}
		return
	}
	d := &Def{ID: id, Name: name, Type: typ, Flags: flags}
	r.defs = append(r.defs, *d)
	r.byID[id] = &r.defs[len(r.defs)-1]
}

// Lookup returns the definition for id, if registered.
func (r *Registry) Lookup(id ID) (Def, bool) {
	d, ok := r.byID[id]
	if !ok {
		return Def{}, false
	}
	return *d, true
}

// LookupByName does a linear scan; used at config-load time only (header
// name -> field id maps), never on the hot path.
func (r *Registry) LookupByName(name string) (Def, bool) {
	for _, d := range r.defs {
		if d.Name == name {
			return d, true
		}
	}
	return Def{}, false
}

type slot struct {
	ints      []int64
	intSeen   map[int64]struct{}
	strs      []string
	strSeen   map[string]struct{}
	ips       [][4]byte
	ipSeen    map[[4]byte]struct{}
	singleInt int64
	hasSingle bool
}

// Store is the per-session field value table. Not safe for concurrent
// use: the spec's single-writer invariant means only the dissector
// owning the current callback mutates it.
type Store struct {
	reg   *Registry
	slots map[ID]*slot
	tags  map[string]struct{}
}

// NewStore returns an empty per-session store bound to reg.
func NewStore(reg *Registry) *Store {
	return &Store{reg: reg, slots: make(map[ID]*slot), tags: make(map[string]struct{})}
}

func (s *Store) slotFor(id ID) *slot {
	sl, ok := s.slots[id]
	if !ok {
		sl = &slot{}
		s.slots[id] = sl
	}
	return sl
}

// AddInt sets a TypeInt field's value (last-write-wins, matching a single
// scalar slot).
func (s *Store) AddInt(id ID, v int64) {
	sl := s.slotFor(id)
	sl.singleInt = v
	sl.hasSingle = true
}

// AddIntArray appends to a TypeIntArray field with no deduplication.
func (s *Store) AddIntArray(id ID, v int64) {
	sl := s.slotFor(id)
	sl.ints = append(sl.ints, v)
}

// AddIntHash adds v to a TypeIntHash field, deduplicated; returns true if
// this is a new distinct value for this session.
func (s *Store) AddIntHash(id ID, v int64) bool {
	sl := s.slotFor(id)
	if sl.intSeen == nil {
		sl.intSeen = make(map[int64]struct{})
	}
	if _, seen := sl.intSeen[v]; seen {
		return false
	}
	sl.intSeen[v] = struct{}{}
	sl.ints = append(sl.ints, v)
	return true
}

// AddString adds a value to a TypeString/TypeStringArray/TypeStringHash
// field. copyFlag is accepted for interface parity with the spec's
// add_string(id, session, str, copy_flag) contract; Go strings are
// already immutable copies so it has no behavioral effect here. The
// return value reports whether the caller's buffer is still "owned" by
// the caller -- i.e. true when the value was deduplicated against an
// existing entry and nothing new was retained.
func (s *Store) AddString(id ID, str string, copyFlag bool) (deduped bool) {
	_ = copyFlag
	def, ok := s.reg.Lookup(id)
	sl := s.slotFor(id)

	if ok && def.Type == TypeStringHash {
		if sl.strSeen == nil {
			sl.strSeen = make(map[string]struct{})
		}
		if _, seen := sl.strSeen[str]; seen {
			return true
		}
		sl.strSeen[str] = struct{}{}
		sl.strs = append(sl.strs, str)
		return false
	}

	if ok && def.Type == TypeString {
		sl.strs = []string{str}
		return false
	}

	sl.strs = append(sl.strs, str)
	return false
}

// AddIPHash stores an IPv4 address (network order) in a TypeIPHash
// field, deduplicated. Returns false if ip is not a valid IPv4 address.
func (s *Store) AddIPHash(id ID, ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	var key [4]byte
	copy(key[:], v4)
	sl := s.slotFor(id)
	if sl.ipSeen == nil {
		sl.ipSeen = make(map[[4]byte]struct{})
	}
	if _, seen := sl.ipSeen[key]; seen {
		return true
	}
	sl.ipSeen[key] = struct{}{}
	sl.ips = append(sl.ips, key)
	return true
}

// AddTag adds a classification tag (stored in the dedicated tags set,
// distinct from any registered field).
func (s *Store) AddTag(tag string) {
	s.tags[tag] = struct{}{}
}

// HasTag reports whether tag has been added to this session.
func (s *Store) HasTag(tag string) bool {
	_, ok := s.tags[tag]
	return ok
}

// Tags returns a sorted snapshot of the session's tag set.
func (s *Store) Tags() []string {
	out := make([]string, 0, len(s.tags))
	for t := range s.tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Int returns the last value set via AddInt.
func (s *Store) Int(id ID) (int64, bool) {
	sl, ok := s.slots[id]
	if !ok || !sl.hasSingle {
		return 0, false
	}
	return sl.singleInt, true
}

// Strings returns the accumulated string values for a field.
func (s *Store) Strings(id ID) []string {
	sl, ok := s.slots[id]
	if !ok {
		return nil
	}
	return sl.strs
}

// IPs returns the accumulated IPv4 addresses (network order) for a field.
func (s *Store) IPs(id ID) [][4]byte {
	sl, ok := s.slots[id]
	if !ok {
		return nil
	}
	return sl.ips
}

// Ints returns the accumulated int values for an array/hash field.
func (s *Store) Ints(id ID) []int64 {
	sl, ok := s.slots[id]
	if !ok {
		return nil
	}
	return sl.ints
}

// StableHash computes a stable dedup hash over the given parts, used by
// the TLS certificate set to dedup by serial+issuer+subject (§3).
func StableHash(parts ...[]byte) uint64 {
	h := xxhash.New()
	for _, p := range parts {
		_, _ = h.Write(p)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}
