package stage

import (
	"fmt"
	"maps"

	"shotline/internal/iotype"
	"shotline/internal/services"
)

// MetadataKey holds a nested map that merges one level deeper than other keys.
const MetadataKey = "metadata"

// Bag is the cumulative record carried through one stack execution. Keys for
// stage data are IOType names; MetadataKey holds free-form annotations.
type Bag map[string]any

// Set stores value under the IO type's name.
func (b Bag) Set(t iotype.IOType, value any) Bag {
	b[string(t)] = value
	return b
}

// Has reports whether a value is stored for t.
func (b Bag) Has(t iotype.IOType) bool {
	_, ok := b[string(t)]
	return ok
}

// Available returns the IO types present in the bag.
func (b Bag) Available() iotype.Set {
	var types []iotype.IOType
	for key := range b {
		if t := iotype.IOType(key); t.Valid() {
			types = append(types, t)
		}
	}
	return iotype.NewSet(types...)
}

// Metadata returns the nested metadata map, or nil when absent.
func (b Bag) Metadata() map[string]any {
	meta, _ := b[MetadataKey].(map[string]any)
	return meta
}

// WithMetadata stores key under the metadata map, creating it if needed.
func (b Bag) WithMetadata(key string, value any) Bag {
	meta := b.Metadata()
	if meta == nil {
		meta = make(map[string]any)
		b[MetadataKey] = meta
	}
	meta[key] = value
	return b
}

// Clone copies the top level and the metadata map.
func (b Bag) Clone() Bag {
	out := make(Bag, len(b))
	maps.Copy(out, b)
	if meta := b.Metadata(); meta != nil {
		out[MetadataKey] = maps.Clone(meta)
	}
	return out
}

// Merge folds data into b. Top-level keys are overwritten; when both sides
// hold a metadata map its keys are merged instead of replacing the map.
func (b Bag) Merge(data Bag) {
	for key, value := range data {
		if key == MetadataKey {
			incoming, ok := value.(map[string]any)
			existing := b.Metadata()
			if ok && existing != nil {
				merged := maps.Clone(existing)
				maps.Copy(merged, incoming)
				b[MetadataKey] = merged
				continue
			}
			if ok {
				b[MetadataKey] = maps.Clone(incoming)
				continue
			}
		}
		b[key] = value
	}
}

// Get returns the value stored for t with its concrete type.
func Get[T any](b Bag, t iotype.IOType) (T, error) {
	var zero T
	raw, ok := b[string(t)]
	if !ok {
		return zero, services.Wrap(services.ErrValidation, "", "read bag", fmt.Sprintf("%s missing from bag", t), nil)
	}
	value, ok := raw.(T)
	if !ok {
		return zero, services.Wrap(services.ErrValidation, "", "read bag", fmt.Sprintf("%s has type %T, want %T", t, raw, zero), nil)
	}
	return value, nil
}
