package iotype

import "strings"

// Set is an unordered collection of IOType values. The zero value is an
// empty set ready to use for reads; use NewSet or Add to populate it.
type Set struct {
	members map[IOType]struct{}
}

// NewSet builds a set from the provided types. Duplicates collapse.
func NewSet(types ...IOType) Set {
	s := Set{members: make(map[IOType]struct{}, len(types))}
	for _, t := range types {
		s.members[t] = struct{}{}
	}
	return s
}

// Len returns the number of members.
func (s Set) Len() int {
	return len(s.members)
}

// Has reports membership.
func (s Set) Has(t IOType) bool {
	_, ok := s.members[t]
	return ok
}

// Add returns a new set containing the receiver's members plus types.
func (s Set) Add(types ...IOType) Set {
	out := s.Clone()
	for _, t := range types {
		out.members[t] = struct{}{}
	}
	return out
}

// Union returns the members of both sets.
func (s Set) Union(other Set) Set {
	out := s.Clone()
	for t := range other.members {
		out.members[t] = struct{}{}
	}
	return out
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := Set{members: make(map[IOType]struct{}, len(s.members))}
	for t := range s.members {
		out.members[t] = struct{}{}
	}
	return out
}

// Equal compares membership only; declaration order is irrelevant.
func (s Set) Equal(other Set) bool {
	if len(s.members) != len(other.members) {
		return false
	}
	for t := range s.members {
		if !other.Has(t) {
			return false
		}
	}
	return true
}

// SubsetOf reports whether every member of s is present in other.
func (s Set) SubsetOf(other Set) bool {
	return len(s.Missing(other)) == 0
}

// Missing lists the members of s absent from available, sorted by name.
func (s Set) Missing(available Set) []IOType {
	var missing []IOType
	for t := range s.members {
		if !available.Has(t) {
			missing = append(missing, t)
		}
	}
	sortTypes(missing)
	return missing
}

// Sorted returns the members sorted by name.
func (s Set) Sorted() []IOType {
	out := make([]IOType, 0, len(s.members))
	for t := range s.members {
		out = append(out, t)
	}
	sortTypes(out)
	return out
}

// Strings returns the sorted member names.
func (s Set) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, t := range sorted {
		out[i] = string(t)
	}
	return out
}

func (s Set) String() string {
	if len(s.members) == 0 {
		return "{}"
	}
	return "{" + strings.Join(s.Strings(), ", ") + "}"
}

// Join renders a list of types as a comma separated string.
func Join(types []IOType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}
