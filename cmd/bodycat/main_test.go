package main

import (
	"bytes"
	"testing"

	"bodyconsumer/internal/consume"
)

func TestPrintValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		v    consume.Value
		want string
	}{
		{"text", consume.Value{Type: consume.TypeText, Text: "hi"}, "hi"},
		{"bytes", consume.Value{Type: consume.TypeBytes, Bytes: []byte{'a', 'b'}}, "ab"},
		{"json", consume.Value{Type: consume.TypeJSON, JSON: map[string]any{"a": 1.0}}, "{\n  \"a\": 1\n}\n"},
		{"form", consume.Value{Type: consume.TypeFormData, Form: &consume.FormData{Entries: []consume.FormEntry{
			{Name: "k", Value: "v"},
			{Name: "f", File: &consume.FormFile{Filename: "a.txt", ContentType: "text/plain", Data: []byte("xyz")}},
		}}}, "k=v\nf: file \"a.txt\" (text/plain, 3 bytes)\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			if err := printValue(&buf, tt.v); err != nil {
				t.Fatalf("printValue: %v", err)
			}
			if buf.String() != tt.want {
				t.Fatalf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}
