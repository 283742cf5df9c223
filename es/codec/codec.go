// Package codec maps typed values to es.Payload and back.
//
// The event store moves payloads as opaque bytes. A Registry binds each type
// discriminator to a Go type and a Codec, so applications encode before Append
// and decode after ReadStream:
//
//	reg := codec.NewRegistry()
//	_ = reg.Register("OrderPlaced", OrderPlaced{}, codec.JSON{})
//
//	body, err := reg.Encode(OrderPlaced{ID: "o-1"})
//	...
//	v, err := reg.Decode(stream.Events[0].Body) // v.(OrderPlaced)
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/getpup/pupstream/es"
)

// ErrSerialization indicates a value or payload the registry cannot convert.
var ErrSerialization = errors.New("serialization failure")

// Codec converts values to bytes and back.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSON encodes with encoding/json.
type JSON struct{}

// Name implements Codec.
func (JSON) Name() string { return "json" }

// Marshal implements Codec.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal implements Codec.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Msgpack encodes with MessagePack. Struct fields use their msgpack tags,
// falling back to json tags.
type Msgpack struct{}

// Name implements Codec.
func (Msgpack) Name() string { return "msgpack" }

// Marshal implements Codec.
func (Msgpack) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

// Unmarshal implements Codec.
func (Msgpack) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

type entry struct {
	typ   reflect.Type
	codec Codec
}

// Registry maps type discriminators to Go types. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]entry
	byType map[reflect.Type]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]entry),
		byType: make(map[reflect.Type]string),
	}
}

// Register binds name to the type of sample. Pointer samples register the
// pointed-to type. A name or type can be registered once.
func (r *Registry) Register(name string, sample any, c Codec) error {
	if name == "" {
		return errors.New("codec: empty type name")
	}
	if sample == nil || c == nil {
		return fmt.Errorf("codec: register %q: sample and codec are required", name)
	}
	typ := baseType(reflect.TypeOf(sample))

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("codec: type name %q already registered", name)
	}
	if other, ok := r.byType[typ]; ok {
		return fmt.Errorf("codec: %s already registered as %q", typ, other)
	}
	r.byName[name] = entry{typ: typ, codec: c}
	r.byType[typ] = name
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(name string, sample any, c Codec) {
	if err := r.Register(name, sample, c); err != nil {
		panic(err)
	}
}

// Name returns the discriminator registered for the type of v.
func (r *Registry) Name(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byType[baseType(reflect.TypeOf(v))]
	return name, ok
}

// Encode converts v to a payload tagged with its registered name.
func (r *Registry) Encode(v any) (es.Payload, error) {
	name, ok := r.Name(v)
	if !ok {
		return es.Payload{}, fmt.Errorf("%w: type %T is not registered", ErrSerialization, v)
	}
	r.mu.RLock()
	e := r.byName[name]
	r.mu.RUnlock()

	data, err := e.codec.Marshal(v)
	if err != nil {
		return es.Payload{}, fmt.Errorf("%w: encode %q with %s: %v", ErrSerialization, name, e.codec.Name(), err)
	}
	return es.Payload{Type: name, Data: data}, nil
}

// Decode converts p to a value of its registered type. The result is a value,
// not a pointer, regardless of how the type was registered.
func (r *Registry) Decode(p es.Payload) (any, error) {
	r.mu.RLock()
	e, ok := r.byName[p.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", ErrSerialization, p.Type)
	}
	ptr := reflect.New(e.typ)
	if err := e.codec.Unmarshal(p.Data, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("%w: decode %q with %s: %v", ErrSerialization, p.Type, e.codec.Name(), err)
	}
	return ptr.Elem().Interface(), nil
}

// Event encodes body, and metadata when non-nil, into an event to append.
func (r *Registry) Event(body, metadata any) (es.EventData, error) {
	b, err := r.Encode(body)
	if err != nil {
		return es.EventData{}, err
	}
	ev := es.EventData{Body: b}
	if metadata != nil {
		m, err := r.Encode(metadata)
		if err != nil {
			return es.EventData{}, err
		}
		ev.Metadata = &m
	}
	return ev, nil
}

// Events encodes a batch of bodies without metadata.
func (r *Registry) Events(bodies ...any) ([]es.EventData, error) {
	out := make([]es.EventData, 0, len(bodies))
	for _, b := range bodies {
		ev, err := r.Event(b, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func baseType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
