package consume

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/textproto"
	"testing"
)

func TestConvert_Text(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{name: "empty", in: nil, want: ""},
		{name: "plain", in: []byte("hello"), want: "hello"},
		{name: "bom stripped", in: []byte("\xef\xbb\xbfhello"), want: "hello"},
		{name: "invalid replaced", in: []byte("a\xffb"), want: "a\ufffdb"},
		{name: "multibyte", in: []byte("grüße"), want: "grüße"},
	}
	for _, tt := range tests {
		v, err := Convert(tt.in, nil, Request{Type: TypeText})
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if v.Text != tt.want {
			t.Fatalf("%s: got %q want %q", tt.name, v.Text, tt.want)
		}
	}
}

func TestConvert_JSON(t *testing.T) {
	t.Parallel()

	v, err := Convert([]byte(`[1,"two",{"three":true}]`), nil, Request{Type: TypeJSON})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	arr, ok := v.JSON.([]any)
	if !ok || len(arr) != 3 || arr[1] != "two" {
		t.Fatalf("value = %#v", v.JSON)
	}

	_, err = Convert([]byte(`{"a":`), nil, Request{Type: TypeJSON})
	var syntaxErr *json.SyntaxError
	if !errors.Is(err, ErrConversion) || !errors.As(err, &syntaxErr) {
		t.Fatalf("malformed err = %v", err)
	}
}

func TestConvert_URLEncodedForm(t *testing.T) {
	t.Parallel()

	v, err := Convert([]byte("a=1&b=hello+world&a=2&flag&bad=%zz"), nil, Request{
		Type:     TypeFormData,
		MimeType: "application/x-www-form-urlencoded; charset=utf-8",
	})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	form := v.Form
	if form.Len() != 5 {
		t.Fatalf("entries = %#v", form.Entries)
	}
	if all := form.GetAll("a"); len(all) != 2 || all[0].Value != "1" || all[1].Value != "2" {
		t.Fatalf("a = %#v", all)
	}
	if e, _ := form.Get("b"); e.Value != "hello world" {
		t.Fatalf("b = %q", e.Value)
	}
	if e, ok := form.Get("flag"); !ok || e.Value != "" {
		t.Fatalf("flag = %#v", e)
	}
	if e, _ := form.Get("bad"); e.Value != "%zz" {
		t.Fatalf("bad = %q", e.Value)
	}
	if got := form.Values().Get("b"); got != "hello world" {
		t.Fatalf("values b = %q", got)
	}
}

func TestConvert_MultipartForm(t *testing.T) {
	t.Parallel()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("name", "value")
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="upload"; filename="a.bin"`)
	part, _ := mw.CreatePart(h)
	_, _ = part.Write([]byte{0, 1, 2})
	_ = mw.Close()

	v, err := Convert(body.Bytes(), nil, Request{Type: TypeFormData, MimeType: mw.FormDataContentType()})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	e, ok := v.Form.Get("upload")
	if !ok || e.File == nil {
		t.Fatalf("upload = %#v", e)
	}
	if e.File.ContentType != "application/octet-stream" || !bytes.Equal(e.File.Data, []byte{0, 1, 2}) {
		t.Fatalf("file = %#v", e.File)
	}
	if len(v.Form.Values()) != 1 {
		t.Fatalf("values = %#v", v.Form.Values())
	}
}

func TestConvert_FormErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		mimeType string
	}{
		{name: "no content type", body: "a=1", mimeType: ""},
		{name: "unsupported", body: "a=1", mimeType: "text/plain"},
		{name: "missing boundary", body: "x", mimeType: "multipart/form-data"},
		{name: "garbage multipart", body: "not multipart at all", mimeType: "multipart/form-data; boundary=abc"},
	}
	for _, tt := range tests {
		_, err := Convert([]byte(tt.body), nil, Request{Type: TypeFormData, MimeType: tt.mimeType})
		if !errors.Is(err, ErrConversion) {
			t.Fatalf("%s: err = %v, want ErrConversion", tt.name, err)
		}
	}
}

func TestConvert_EmptyMultipartIsEmptyForm(t *testing.T) {
	t.Parallel()

	v, err := Convert(nil, nil, Request{Type: TypeFormData, MimeType: "multipart/form-data; boundary=abc"})
	if err != nil || v.Form.Len() != 0 {
		t.Fatalf("got %#v, %v", v.Form, err)
	}
}

func TestParseType(t *testing.T) {
	t.Parallel()

	for _, typ := range []Type{TypeRawBytes, TypeBlob, TypeBytes, TypeFormData, TypeJSON, TypeText} {
		got, err := ParseType(typ.String())
		if err != nil || got != typ {
			t.Fatalf("ParseType(%q) = %v, %v", typ.String(), got, err)
		}
	}
	if _, err := ParseType("xml"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("unknown type err = %v", err)
	}
}
