package codec_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/adapters/memory"
	"github.com/getpup/pupstream/es/codec"
	"github.com/getpup/pupstream/es/eventstore"
)

type OrderPlaced struct {
	OrderID string `json:"order_id"`
	Total   int64  `json:"total"`
}

type OrderShipped struct {
	OrderID string `json:"order_id"`
	Carrier string `json:"carrier"`
}

type Audit struct {
	User string `json:"user"`
}

func newRegistry(t *testing.T) *codec.Registry {
	t.Helper()
	reg := codec.NewRegistry()
	require.NoError(t, reg.Register("OrderPlaced", OrderPlaced{}, codec.JSON{}))
	require.NoError(t, reg.Register("OrderShipped", &OrderShipped{}, codec.Msgpack{}))
	require.NoError(t, reg.Register("Audit", Audit{}, codec.JSON{}))
	return reg
}

func TestCodecs(t *testing.T) {
	tests := []struct {
		name  string
		codec codec.Codec
	}{
		{"json", codec.JSON{}},
		{"msgpack", codec.Msgpack{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.codec.Name())

			in := OrderPlaced{OrderID: "o-1", Total: 42}
			data, err := tt.codec.Marshal(in)
			require.NoError(t, err)

			var out OrderPlaced
			require.NoError(t, tt.codec.Unmarshal(data, &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestRegistry_RoundTrip(t *testing.T) {
	reg := newRegistry(t)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{name: "json value", in: OrderPlaced{OrderID: "o-1", Total: 42}, want: OrderPlaced{OrderID: "o-1", Total: 42}},
		{name: "json pointer", in: &OrderPlaced{OrderID: "o-2"}, want: OrderPlaced{OrderID: "o-2"}},
		{name: "msgpack", in: OrderShipped{OrderID: "o-1", Carrier: "ups"}, want: OrderShipped{OrderID: "o-1", Carrier: "ups"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := reg.Encode(tt.in)
			require.NoError(t, err)

			got, err := reg.Decode(p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry_JSONWireFormat(t *testing.T) {
	reg := newRegistry(t)
	p, err := reg.Encode(OrderPlaced{OrderID: "o-1", Total: 5})
	require.NoError(t, err)
	assert.Equal(t, "OrderPlaced", p.Type)
	assert.JSONEq(t, `{"order_id":"o-1","total":5}`, string(p.Data))
}

func TestRegistry_SerializationErrors(t *testing.T) {
	reg := newRegistry(t)

	_, err := reg.Encode(struct{ X int }{1})
	assert.ErrorIs(t, err, codec.ErrSerialization)

	_, err = reg.Decode(es.Payload{Type: "Unknown", Data: []byte(`{}`)})
	assert.ErrorIs(t, err, codec.ErrSerialization)

	_, err = reg.Decode(es.Payload{Type: "OrderPlaced", Data: []byte(`{not json`)})
	assert.ErrorIs(t, err, codec.ErrSerialization)

	_, err = reg.Encode(nil)
	assert.ErrorIs(t, err, codec.ErrSerialization)
}

type unencodable struct {
	C chan int `json:"c"`
}

func TestRegistry_MarshalFailure(t *testing.T) {
	reg := codec.NewRegistry()
	require.NoError(t, reg.Register("Bad", unencodable{}, codec.JSON{}))

	_, err := reg.Encode(unencodable{C: make(chan int)})
	assert.ErrorIs(t, err, codec.ErrSerialization)
}

func TestRegistry_RegisterRejectsDuplicates(t *testing.T) {
	reg := newRegistry(t)

	assert.Error(t, reg.Register("OrderPlaced", Audit{}, codec.JSON{}))
	assert.Error(t, reg.Register("Placed", &OrderPlaced{}, codec.JSON{}))
	assert.Error(t, reg.Register("", Audit{}, codec.JSON{}))
	assert.Error(t, reg.Register("Nil", nil, codec.JSON{}))
	assert.Panics(t, func() { reg.MustRegister("OrderPlaced", OrderPlaced{}, codec.JSON{}) })

	name, ok := reg.Name(&OrderShipped{})
	assert.True(t, ok)
	assert.Equal(t, "OrderShipped", name)
}

func TestRegistry_ThroughEventStore(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	st := eventstore.New(memory.NewStore(memory.DefaultStoreConfig()), eventstore.DefaultStoreConfig())

	placed, err := reg.Event(OrderPlaced{OrderID: "o-1", Total: 10}, Audit{User: "alice"})
	require.NoError(t, err)
	rest, err := reg.Events(OrderShipped{OrderID: "o-1", Carrier: "dhl"})
	require.NoError(t, err)

	_, err = st.Append(ctx, "order-o-1", es.NoStream(), append([]es.EventData{placed}, rest...))
	require.NoError(t, err)

	stream, ok, err := st.ReadStream(ctx, "order-o-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, stream.Events, 2)

	var decoded []any
	for _, e := range stream.Events {
		v, err := reg.Decode(e.Body)
		require.NoError(t, err)
		decoded = append(decoded, v)
	}
	assert.Equal(t, []any{
		OrderPlaced{OrderID: "o-1", Total: 10},
		OrderShipped{OrderID: "o-1", Carrier: "dhl"},
	}, decoded)

	meta, err := reg.Decode(*stream.Events[0].Metadata)
	require.NoError(t, err)
	assert.Equal(t, Audit{User: "alice"}, meta)

	_, err = reg.Events(OrderPlaced{}, 42)
	assert.True(t, errors.Is(err, codec.ErrSerialization))
}
