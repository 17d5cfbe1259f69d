package consume

import (
	"encoding/json"
	"errors"
	"strings"

	"bodyconsumer/internal/storage"

	"golang.org/x/text/encoding/unicode"
)

// Converter turns the bytes (or blob) of a fully read body into a Value.
type Converter func(data []byte, blob *storage.Blob, req Request) (Value, error)

// Convert is the default Converter.
func Convert(data []byte, blob *storage.Blob, req Request) (Value, error) {
	switch req.Type {
	case TypeRawBytes, TypeBytes:
		if data == nil {
			data = []byte{}
		}
		return Value{Type: req.Type, Bytes: data}, nil
	case TypeBlob:
		if blob == nil {
			return Value{}, conversionError(req.Type, errors.New("no blob produced"))
		}
		// A reused blob keeps the type it was stored with.
		return Value{Type: req.Type, Blob: blob}, nil
	case TypeText:
		return Value{Type: req.Type, Text: decodeText(data)}, nil
	case TypeJSON:
		var v any
		if err := json.Unmarshal([]byte(decodeText(data)), &v); err != nil {
			return Value{}, conversionError(req.Type, err)
		}
		return Value{Type: req.Type, JSON: v}, nil
	case TypeFormData:
		form, err := parseFormData(data, req.formMimeType())
		if err != nil {
			return Value{}, conversionError(req.Type, err)
		}
		return Value{Type: req.Type, Form: form}, nil
	default:
		return Value{}, conversionError(req.Type, errors.New("unsupported type"))
	}
}

// decodeText decodes UTF-8, dropping a leading BOM and replacing invalid
// sequences with U+FFFD. It never fails.
func decodeText(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	out, err := unicode.UTF8BOM.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(strings.TrimPrefix(string(data), "\ufeff"), "\ufffd")
	}
	return string(out)
}
