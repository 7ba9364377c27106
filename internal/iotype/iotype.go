package iotype

import (
	"fmt"
	"sort"
	"strings"
)

// IOType names one kind of data flowing between stages.
type IOType string

const (
	Video           IOType = "video"
	Audio           IOType = "audio"
	Images          IOType = "images"
	Frames          IOType = "frames"
	ScoredFrames    IOType = "scored-frames"
	Candidates      IOType = "candidates"
	Classifications IOType = "classifications"
	GeneratedImages IOType = "generated-images"
	Uploads         IOType = "uploads"
	Text            IOType = "text"
)

var allTypes = []IOType{
	Video,
	Audio,
	Images,
	Frames,
	ScoredFrames,
	Candidates,
	Classifications,
	GeneratedImages,
	Uploads,
	Text,
}

var known = func() map[IOType]struct{} {
	set := make(map[IOType]struct{}, len(allTypes))
	for _, t := range allTypes {
		set[t] = struct{}{}
	}
	return set
}()

// All returns every IOType in declaration order.
func All() []IOType {
	cp := make([]IOType, len(allTypes))
	copy(cp, allTypes)
	return cp
}

// Valid reports whether t belongs to the vocabulary.
func (t IOType) Valid() bool {
	_, ok := known[t]
	return ok
}

func (t IOType) String() string {
	return string(t)
}

// Parse converts a name into a known IOType.
func Parse(value string) (IOType, error) {
	normalized := IOType(strings.ToLower(strings.TrimSpace(value)))
	if !normalized.Valid() {
		return "", fmt.Errorf("unknown io type %q", value)
	}
	return normalized, nil
}

// MustParseAll parses each name and panics on an unknown value. Intended for
// static stage declarations.
func MustParseAll(values ...string) []IOType {
	out := make([]IOType, 0, len(values))
	for _, v := range values {
		t, err := Parse(v)
		if err != nil {
			panic(err)
		}
		out = append(out, t)
	}
	return out
}

func sortTypes(types []IOType) {
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
}
