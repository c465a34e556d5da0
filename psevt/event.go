// Package psevt implements the per-transition event container. An Event
// is a typed-key bag: values are addressed by their Go type plus an
// optional source specifier and an optional string key. One Event is
// allocated per transition by the event loop, handed read/write to every
// module in the chain, and finally reaches the iterator consumer.
package psevt

import (
	"fmt"
	"reflect"
	"sort"
)

// Key identifies a value inside an Event.
type Key struct {
	Type reflect.Type
	Src  string
	Key  string
}

// String renders the key for diagnostics and key dumps.
func (k Key) String() string {
	s := k.Type.String()
	if k.Src != "" {
		s += " src=" + k.Src
	}
	if k.Key != "" {
		s += " key=" + k.Key
	}
	return s
}

// Event is the typed key/value bag passed through the module chain.
// The event loop is single-threaded, so Event performs no locking;
// modules must not retain an Event past the callback that received it.
type Event struct {
	items map[Key]any
}

// New creates an empty event.
func New() *Event {
	return &Event{items: make(map[Key]any)}
}

// Option narrows the addressed slot of a Put/Get/Exists/Remove call.
type Option func(*Key)

// WithSrc addresses a value tagged with a source specifier.
func WithSrc(src string) Option {
	return func(k *Key) { k.Src = src }
}

// WithKey addresses a value tagged with a string key.
func WithKey(key string) Option {
	return func(k *Key) { k.Key = key }
}

func makeKey[T any](opts []Option) Key {
	k := Key{Type: reflect.TypeOf((*T)(nil)).Elem()}
	for _, o := range opts {
		o(&k)
	}
	return k
}

// Put stores a value. Storing into an occupied slot is an error; the
// producing module owns its slot for the lifetime of the event.
func Put[T any](evt *Event, value T, opts ...Option) error {
	k := makeKey[T](opts)
	if _, ok := evt.items[k]; ok {
		return fmt.Errorf("event already contains %s", k)
	}
	evt.items[k] = value
	return nil
}

// Replace stores a value, overwriting any existing one.
func Replace[T any](evt *Event, value T, opts ...Option) {
	evt.items[makeKey[T](opts)] = value
}

// Get retrieves a value; the second result reports presence.
func Get[T any](evt *Event, opts ...Option) (T, bool) {
	v, ok := evt.items[makeKey[T](opts)]
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// Exists reports whether a slot is occupied.
func Exists[T any](evt *Event, opts ...Option) bool {
	_, ok := evt.items[makeKey[T](opts)]
	return ok
}

// Remove deletes a slot and reports whether it was present.
func Remove[T any](evt *Event, opts ...Option) bool {
	k := makeKey[T](opts)
	_, ok := evt.items[k]
	delete(evt.items, k)
	return ok
}

// Keys returns every occupied key, sorted by string form.
func (e *Event) Keys() []Key {
	keys := make([]Key, 0, len(e.items))
	for k := range e.items {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Len returns the number of occupied slots, the skip marker included.
func (e *Event) Len() int {
	return len(e.items)
}

// skipMarker is the hidden slot the dispatcher sets when a module
// requests skip, so later observe-all modules can see the event was
// skipped.
type skipMarker struct{}

const skipMarkerKey = "__psana_skip_event__"

// MarkSkip sets the hidden skip marker. Setting it twice is a no-op.
func (e *Event) MarkSkip() {
	k := Key{Type: reflect.TypeOf(skipMarker{}), Key: skipMarkerKey}
	if _, ok := e.items[k]; !ok {
		e.items[k] = skipMarker{}
	}
}

// SkipMarked reports whether a prior module requested skip for this event.
func (e *Event) SkipMarked() bool {
	k := Key{Type: reflect.TypeOf(skipMarker{}), Key: skipMarkerKey}
	_, ok := e.items[k]
	return ok
}
