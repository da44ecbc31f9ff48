package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/campus-loyalty/pkg/enums"
)

// ErrDecoderNotRegistered means no decoder knows this event type at this schema version.
var ErrDecoderNotRegistered = errors.New("decoder not registered")

// DecodeFunc turns a raw payload into its typed form.
type DecodeFunc func(payload json.RawMessage) (any, error)

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// Decoders maps (event type, schema version) to a payload decoder. It is
// filled once at startup and read-only afterwards.
type Decoders struct {
	byKey map[decoderKey]DecodeFunc
}

func NewDecoders() *Decoders {
	return &Decoders{byKey: map[decoderKey]DecodeFunc{}}
}

// Add registers fn. Registering the same pair twice is a wiring bug.
func (d *Decoders) Add(eventType enums.OutboxEventType, version int, fn DecodeFunc) error {
	if version < 1 || fn == nil {
		return fmt.Errorf("decoder for %s@v%d: version must be >= 1 and fn set", eventType, version)
	}
	key := decoderKey{eventType, version}
	if _, dup := d.byKey[key]; dup {
		return fmt.Errorf("decoder for %s@v%d already registered", eventType, version)
	}
	d.byKey[key] = fn
	return nil
}

// Decode treats version 0 as 1; envelopes written before versioning carry none.
func (d *Decoders) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	if version == 0 {
		version = 1
	}
	fn, ok := d.byKey[decoderKey{eventType, version}]
	if !ok {
		return nil, fmt.Errorf("%w: %s@v%d", ErrDecoderNotRegistered, eventType, version)
	}
	return fn(payload)
}

// JSON decodes the payload into a fresh *T.
func JSON[T any]() DecodeFunc {
	return func(payload json.RawMessage) (any, error) {
		out := new(T)
		if err := json.Unmarshal(payload, out); err != nil {
			return nil, err
		}
		return out, nil
	}
}
