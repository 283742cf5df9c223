package es

import (
	"errors"
	"testing"
)

func TestDocumentIDs(t *testing.T) {
	if got := HeaderID("order-1"); got != "order-1" {
		t.Errorf("HeaderID() = %q, want %q", got, "order-1")
	}
	if got := EventID("order-1", 42); got != "order-1~42" {
		t.Errorf("EventID() = %q, want %q", got, "order-1~42")
	}
	if got := SnapshotID("order-1", 42); got != "order-1~42~S" {
		t.Errorf("SnapshotID() = %q, want %q", got, "order-1~42~S")
	}
}

func TestDocumentIDs_DistinctAcrossKinds(t *testing.T) {
	seen := map[string]string{}
	add := func(kind, id string) {
		if prev, ok := seen[id]; ok {
			t.Fatalf("id %q used by both %s and %s", id, prev, kind)
		}
		seen[id] = kind
	}
	for _, stream := range []string{"a", "a1", "1"} {
		add("header "+stream, HeaderID(stream))
		for v := int64(1); v <= 12; v++ {
			add("event", EventID(stream, v))
			add("snapshot", SnapshotID(stream, v))
		}
	}
}

func TestParseDocumentID(t *testing.T) {
	tests := []struct {
		id      string
		stream  string
		version int64
		typ     DocumentType
		wantErr bool
	}{
		{id: "order-1", stream: "order-1", typ: DocumentTypeHeader},
		{id: EventID("order-1", 7), stream: "order-1", version: 7, typ: DocumentTypeEvent},
		{id: SnapshotID("order-1", 7), stream: "order-1", version: 7, typ: DocumentTypeSnapshot},
		{id: "", wantErr: true},
		{id: "~1", wantErr: true},
		{id: "s~x", wantErr: true},
		{id: "s~07", wantErr: true},
		{id: "s~-1", wantErr: true},
		{id: "s~1~T", wantErr: true},
		{id: "s~1~S~S", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			stream, version, typ, err := ParseDocumentID(tt.id)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseDocumentID(%q) expected error", tt.id)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDocumentID(%q) unexpected error: %v", tt.id, err)
			}
			if stream != tt.stream || version != tt.version || typ != tt.typ {
				t.Errorf("ParseDocumentID(%q) = (%q, %d, %v), want (%q, %d, %v)",
					tt.id, stream, version, typ, tt.stream, tt.version, tt.typ)
			}
		})
	}
}

func TestValidateStreamID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"plain", "order-1", false},
		{"unicode", "bestellung-ü", false},
		{"with slash", "tenant/order", false},
		{"empty", "", true},
		{"separator", "order~1", true},
		{"trailing separator", "order~", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStreamID(tt.id)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidStreamID) {
					t.Errorf("ValidateStreamID(%q) = %v, want ErrInvalidStreamID", tt.id, err)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateStreamID(%q) unexpected error: %v", tt.id, err)
			}
		})
	}
}

func TestDocumentType_String(t *testing.T) {
	for _, typ := range []DocumentType{DocumentTypeHeader, DocumentTypeEvent, DocumentTypeSnapshot} {
		parsed, err := ParseDocumentType(typ.String())
		if err != nil {
			t.Fatalf("ParseDocumentType(%q): %v", typ.String(), err)
		}
		if parsed != typ {
			t.Errorf("ParseDocumentType(%q) = %v, want %v", typ.String(), parsed, typ)
		}
	}
	if _, err := ParseDocumentType("tombstone"); err == nil {
		t.Error("expected error for unknown type")
	}
	if got := DocumentType(9).String(); got != "DocumentType(9)" {
		t.Errorf("String() = %q", got)
	}
}

func TestDocument_Validate(t *testing.T) {
	body := Payload{Type: "Created"}
	tests := []struct {
		name    string
		doc     Document
		wantErr bool
	}{
		{"header", NewHeaderDocument("s", "s", 0, nil), false},
		{"event", NewEventDocument("s", "s", 1, nil, body), false},
		{"snapshot", NewSnapshotDocument("s", "s", 3, body, nil), false},
		{"event at zero", NewEventDocument("s", "s", 0, nil, body), true},
		{"negative header", NewHeaderDocument("s", "s", -1, nil), true},
		{"empty stream", NewHeaderDocument("", "", 0, nil), true},
		{
			name:    "event without body",
			doc:     Document{ID: "s~1", StreamID: "s", Type: DocumentTypeEvent, Version: 1},
			wantErr: true,
		},
		{
			name:    "snapshot without data",
			doc:     Document{ID: "s~1~S", StreamID: "s", Type: DocumentTypeSnapshot, Version: 1},
			wantErr: true,
		},
		{
			name:    "header with body",
			doc:     Document{ID: "s", StreamID: "s", Type: DocumentTypeHeader, Body: &body},
			wantErr: true,
		},
		{
			name:    "id mismatch",
			doc:     Document{ID: "s~2", StreamID: "s", Type: DocumentTypeEvent, Version: 1, Body: &body},
			wantErr: true,
		},
		{
			name:    "unknown type",
			doc:     Document{ID: "s", StreamID: "s"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.doc.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDocument_CloneIsDeep(t *testing.T) {
	d := NewEventDocument("s", "s", 1, NewPayload("M", []byte("meta")), Payload{Type: "B", Data: []byte("body")})
	c := d.Clone()

	c.Body.Data[0] = 'X'
	c.Metadata.Data[0] = 'X'

	if string(d.Body.Data) != "body" {
		t.Errorf("original body mutated: %q", d.Body.Data)
	}
	if string(d.Metadata.Data) != "meta" {
		t.Errorf("original metadata mutated: %q", d.Metadata.Data)
	}
}

func TestPayload_Equal(t *testing.T) {
	var nilPayload *Payload
	if !nilPayload.Equal(nil) {
		t.Error("nil payloads should be equal")
	}
	if nilPayload.Equal(NewPayload("", nil)) {
		t.Error("nil and empty payload should differ")
	}
	if !NewPayload("T", []byte("x")).Equal(NewPayload("T", []byte("x"))) {
		t.Error("identical payloads should be equal")
	}
	if NewPayload("T", []byte("x")).Equal(NewPayload("U", []byte("x"))) {
		t.Error("payloads with different types should differ")
	}
}
