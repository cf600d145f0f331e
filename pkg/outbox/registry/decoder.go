package registry

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/angelmondragon/duka-backend/pkg/enums"
)

// Decoder turns the data field of an envelope into a typed payload.
type Decoder func(data json.RawMessage) (any, error)

// JSONDecoder decodes into a fresh *T.
func JSONDecoder[T any]() Decoder {
	return func(data json.RawMessage) (any, error) {
		out := new(T)
		if err := json.Unmarshal(data, out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

type registryKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry stores payload decoders per event type and schema version.
// A new schema version registers alongside the old one so rows written before
// a deploy still relay.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]Decoder
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]Decoder)}
}

// Register stores decoder for eventType@version, replacing any previous one.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder Decoder) {
	if decoder == nil || version <= 0 {
		return
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{eventType: eventType, version: version}] = decoder
}

// Decode runs the decoder registered for eventType@version.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mtx.RLock()
	decoder, ok := r.registry[registryKey{eventType: eventType, version: version}]
	r.mtx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
	}
	return decoder(payload)
}

// Versions lists the registered schema versions of eventType in ascending order.
func (r *DecoderRegistry) Versions(eventType enums.OutboxEventType) []int {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	var out []int
	for key := range r.registry {
		if key.eventType == eventType {
			out = append(out, key.version)
		}
	}
	slices.Sort(out)
	return out
}
