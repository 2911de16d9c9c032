package domain

import (
	"encoding/json"
	"strings"

	dErrors "curio/pkg/domain-errors"
)

// Capability is a unit of permitted action on an archive.
type Capability uint8

// The full capability vocabulary. Values are a bitmask so a grant round-trips
// losslessly through the numeric permission field used by the reference
// deployment.
const (
	CapabilityView   Capability = 1 << iota // read archive metadata and content
	CapabilityEdit                          // modify mutable archive fields
	CapabilityDelete                        // remove the archive
)

var capabilityNames = map[Capability]string{
	CapabilityView:   "view",
	CapabilityEdit:   "edit",
	CapabilityDelete: "delete",
}

// ParseCapability constructs a Capability from external input.
//
// Errors: returns CodeInvalidInput when the value names no known capability.
func ParseCapability(s string) (Capability, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "view":
		return CapabilityView, nil
	case "edit":
		return CapabilityEdit, nil
	case "delete":
		return CapabilityDelete, nil
	default:
		return 0, dErrors.New(dErrors.CodeInvalidInput, "unknown capability: "+s)
	}
}

// String returns the capability name, or "unknown" for invalid values.
func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return "unknown"
}

// CapabilitySet is a subset of {View, Edit, Delete} held by a grantee for one
// archive. The zero value is the empty set, which is semantically equivalent
// to no grant at all.
type CapabilitySet uint8

// AllCapabilities is the set the owner implicitly holds.
const AllCapabilities = CapabilitySet(CapabilityView | CapabilityEdit | CapabilityDelete)

// NewCapabilitySet builds a set from individual capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	var s CapabilitySet
	for _, c := range caps {
		s |= CapabilitySet(c)
	}
	return s
}

// Has reports whether the set contains the capability.
func (s CapabilitySet) Has(c Capability) bool {
	return s&CapabilitySet(c) != 0
}

// With returns the set extended by the capability.
func (s CapabilitySet) With(c Capability) CapabilitySet {
	return s | CapabilitySet(c)
}

// Without returns the set with the capability removed.
func (s CapabilitySet) Without(c Capability) CapabilitySet {
	return s &^ CapabilitySet(c)
}

// IsEmpty reports whether the set grants nothing. An empty grant is treated
// identically to an absent ACL entry everywhere.
func (s CapabilitySet) IsEmpty() bool {
	return s == 0
}

// Valid reports whether the set stays within the known capability mask.
func (s CapabilitySet) Valid() bool {
	return s&^AllCapabilities == 0
}

// Capabilities lists the members in declaration order.
func (s CapabilitySet) Capabilities() []Capability {
	caps := make([]Capability, 0, 3)
	for _, c := range []Capability{CapabilityView, CapabilityEdit, CapabilityDelete} {
		if s.Has(c) {
			caps = append(caps, c)
		}
	}
	return caps
}

// String renders the set as a comma-separated list, e.g. "view,edit".
func (s CapabilitySet) String() string {
	names := make([]string, 0, 3)
	for _, c := range s.Capabilities() {
		names = append(names, c.String())
	}
	return strings.Join(names, ",")
}

// MarshalJSON renders the set as a JSON array of capability names.
func (s CapabilitySet) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, 3)
	for _, c := range s.Capabilities() {
		names = append(names, c.String())
	}
	return json.Marshal(names)
}

// UnmarshalJSON parses a JSON array of capability names.
func (s *CapabilitySet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "capabilities must be an array of names")
	}
	var set CapabilitySet
	for _, name := range names {
		c, err := ParseCapability(name)
		if err != nil {
			return err
		}
		set = set.With(c)
	}
	*s = set
	return nil
}
