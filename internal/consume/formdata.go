package consume

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"
)

const (
	mimeMultipartForm  = "multipart/form-data"
	mimeURLEncodedForm = "application/x-www-form-urlencoded"
)

// FormFile is a file entry of a multipart body.
type FormFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// FormEntry is one name/value pair. File is set for file entries, Value
// otherwise.
type FormEntry struct {
	Name  string
	Value string
	File  *FormFile
}

// FormData keeps entries in body order.
type FormData struct {
	Entries []FormEntry
}

func (f *FormData) Len() int { return len(f.Entries) }

// Get returns the first entry named name.
func (f *FormData) Get(name string) (FormEntry, bool) {
	for _, e := range f.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return FormEntry{}, false
}

func (f *FormData) GetAll(name string) []FormEntry {
	var out []FormEntry
	for _, e := range f.Entries {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Values returns the non-file entries.
func (f *FormData) Values() url.Values {
	out := url.Values{}
	for _, e := range f.Entries {
		if e.File == nil {
			out.Add(e.Name, e.Value)
		}
	}
	return out
}

func parseFormData(data []byte, mimeType string) (*FormData, error) {
	if strings.TrimSpace(mimeType) == "" {
		return nil, errors.New("missing form content type")
	}
	mediaType, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return nil, fmt.Errorf("parse content type: %w", err)
	}

	switch mediaType {
	case mimeMultipartForm:
		boundary := params["boundary"]
		if boundary == "" {
			return nil, errors.New("missing multipart boundary")
		}
		if len(data) == 0 {
			return &FormData{}, nil
		}
		return parseMultipart(data, boundary)
	case mimeURLEncodedForm:
		return parseURLEncoded(data), nil
	default:
		return nil, fmt.Errorf("unsupported form content type %q", mediaType)
	}
}

func parseMultipart(data []byte, boundary string) (*FormData, error) {
	mr := multipart.NewReader(bytes.NewReader(data), boundary)
	form := &FormData{}
	for {
		part, err := mr.NextPart()
		// A clean end is a bare io.EOF; a truncated body wraps it.
		if err == io.EOF {
			return form, nil
		}
		if err != nil {
			return nil, err
		}

		name := part.FormName()
		if name == "" {
			_ = part.Close()
			return nil, errors.New("multipart part without a name")
		}
		content, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			return nil, err
		}

		entry := FormEntry{Name: name}
		if _, params, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition")); hasFilename(params) {
			contentType := part.Header.Get("Content-Type")
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			entry.File = &FormFile{
				Filename:    part.FileName(),
				ContentType: contentType,
				Data:        content,
			}
		} else {
			entry.Value = decodeText(content)
		}
		form.Entries = append(form.Entries, entry)
	}
}

func hasFilename(params map[string]string) bool {
	_, ok := params["filename"]
	return ok
}

// parseURLEncoded never fails: undecodable escapes are kept literally.
func parseURLEncoded(data []byte) *FormData {
	form := &FormData{}
	for _, pair := range strings.Split(decodeText(data), "&") {
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		form.Entries = append(form.Entries, FormEntry{
			Name:  unescapeFormValue(name),
			Value: unescapeFormValue(value),
		})
	}
	return form
}

func unescapeFormValue(raw string) string {
	if v, err := url.QueryUnescape(raw); err == nil {
		return v
	}
	return strings.ReplaceAll(raw, "+", " ")
}
