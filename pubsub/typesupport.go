package pubsub

import (
	"encoding/json"
	"fmt"
)

// TypeSupport describes how a payload type T travels on the wire: its
// registered type name plus marshal/unmarshal functions. Two endpoints
// match only when topic name and type name agree, so the name is part of
// the matching contract, not just a label.
type TypeSupport[T any] struct {
	name      string
	marshal   func(T) ([]byte, error)
	unmarshal func([]byte) (T, error)
}

// NewTypeSupport builds a TypeSupport with an explicit codec.
func NewTypeSupport[T any](name string, marshal func(T) ([]byte, error), unmarshal func([]byte) (T, error)) TypeSupport[T] {
	return TypeSupport[T]{name: name, marshal: marshal, unmarshal: unmarshal}
}

// JSONType builds a TypeSupport using JSON encoding for T.
func JSONType[T any](name string) TypeSupport[T] {
	return TypeSupport[T]{
		name: name,
		marshal: func(v T) ([]byte, error) {
			return json.Marshal(v)
		},
		unmarshal: func(b []byte) (T, error) {
			var v T
			err := json.Unmarshal(b, &v)
			return v, err
		},
	}
}

// Name returns the wire type name.
func (ts TypeSupport[T]) Name() string {
	return ts.name
}

// Marshal encodes one sample.
func (ts TypeSupport[T]) Marshal(v T) ([]byte, error) {
	if ts.marshal == nil {
		return nil, fmt.Errorf("dds: type %s has no marshal function", ts.name)
	}
	return ts.marshal(v)
}

// Unmarshal decodes one sample.
func (ts TypeSupport[T]) Unmarshal(b []byte) (T, error) {
	if ts.unmarshal == nil {
		var zero T
		return zero, fmt.Errorf("dds: type %s has no unmarshal function", ts.name)
	}
	return ts.unmarshal(b)
}
