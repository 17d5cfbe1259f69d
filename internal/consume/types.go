package consume

import (
	"fmt"
	"strings"

	"bodyconsumer/internal/storage"
)

// Type is the representation a body is consumed into.
type Type int

const (
	TypeRawBytes Type = iota
	TypeBlob
	TypeBytes
	TypeFormData
	TypeJSON
	TypeText
)

var typeNames = map[Type]string{
	TypeRawBytes: "arraybuffer",
	TypeBlob:     "blob",
	TypeBytes:    "bytes",
	TypeFormData: "formdata",
	TypeJSON:     "json",
	TypeText:     "text",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

func (t Type) valid() bool {
	_, ok := typeNames[t]
	return ok
}

// ParseType accepts the names returned by Type.String plus a few aliases.
func ParseType(raw string) (Type, error) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "arraybuffer", "array-buffer", "raw", "rawbytes":
		return TypeRawBytes, nil
	case "blob":
		return TypeBlob, nil
	case "bytes":
		return TypeBytes, nil
	case "formdata", "form-data", "form":
		return TypeFormData, nil
	case "json":
		return TypeJSON, nil
	case "text":
		return TypeText, nil
	default:
		return 0, fmt.Errorf("%w: unknown consume type %q", ErrInvalidRequest, raw)
	}
}

// Request describes what to produce from a body. It is not modified once
// handed to a Consumer.
type Request struct {
	Type Type

	// BlobURISpec names an already registered blob. Blob output resolves it
	// through Env.Blobs before reading the stream.
	BlobURISpec string

	// LocalPath is the file the body was created from, if any. Blob output
	// serves the file directly.
	LocalPath string

	// MimeType is recorded on produced blobs.
	MimeType string

	// MixedCaseMimeType keeps the original case of the Content-Type so the
	// multipart boundary survives.
	MixedCaseMimeType string

	// Storage receives the chunks of a Blob body. Defaults to Env.Storage.
	Storage storage.BlobStorage
}

func (r Request) formMimeType() string {
	if strings.TrimSpace(r.MixedCaseMimeType) != "" {
		return r.MixedCaseMimeType
	}
	return r.MimeType
}

// Value is a consumed body. Only the field matching Type is set.
type Value struct {
	Type  Type
	Bytes []byte
	Blob  *storage.Blob
	Text  string
	JSON  any
	Form  *FormData
}

// State is the lifecycle position of a Consumer.
type State int32

const (
	StateCreated State = iota
	StateReading
	StateConverting
	StateResolved
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateReading:
		return "reading"
	case StateConverting:
		return "converting"
	case StateResolved:
		return "resolved"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}
