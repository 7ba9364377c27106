package stage

import (
	"fmt"

	"shotline/internal/services"
)

// Options is the typed configuration of one stage. Each stage package
// defines its own implementation; StageID ties a value to the stage that
// understands it.
type Options interface {
	StageID() string
}

// DecodeFunc builds typed options from a stack file entry. decode unmarshals
// the raw entry into the pointer it is given.
type DecodeFunc func(decode func(target any) error) (Options, error)

// OptionsAs returns opts as T, or fallback when opts is nil. Options meant
// for a different stage are a validation error.
func OptionsAs[T Options](opts Options, fallback T) (T, error) {
	if opts == nil {
		return fallback, nil
	}
	typed, ok := opts.(T)
	if !ok {
		return fallback, services.Wrap(services.ErrValidation, fallback.StageID(), "options",
			fmt.Sprintf("options for stage %q cannot configure %q", opts.StageID(), fallback.StageID()), nil)
	}
	return typed, nil
}

// DecodeInto returns a DecodeFunc that decodes into a copy of defaults, so
// keys absent from the entry keep their default values.
func DecodeInto[T Options](defaults T) DecodeFunc {
	return func(decode func(target any) error) (Options, error) {
		value := defaults
		if err := decode(&value); err != nil {
			return nil, services.Wrap(services.ErrValidation, defaults.StageID(), "decode options", "", err)
		}
		return value, nil
	}
}
