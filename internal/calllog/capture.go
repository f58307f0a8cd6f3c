package calllog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"
	"unicode/utf8"
)

// CaptureBody drains a one-shot body and returns its bytes together with a
// fresh reader over the same content, so the real consumer still observes an
// unconsumed stream.
func CaptureBody(rc io.ReadCloser) ([]byte, io.ReadCloser, error) {
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, err
	}
	return b, io.NopCloser(bytes.NewReader(b)), nil
}

// DecodeText best-effort decodes bytes as UTF-8 text. The second return is
// false when the content is not valid UTF-8.
func DecodeText(b []byte) (string, bool) {
	if !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}

// ExtractFileMeta parses a buffered multipart body and returns metadata for
// the uploaded file: the part that declares both a filename and a content
// type. A (nil, nil) return means the form carried no file, which is not an
// error.
func ExtractFileMeta(contentType string, body []byte) (*FileMeta, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, err
	}
	boundary, ok := params["boundary"]
	if !ok {
		return nil, fmt.Errorf("missing multipart boundary")
	}

	mr := multipart.NewReader(bytes.NewReader(body), boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		if part.FileName() == "" || part.Header.Get("Content-Type") == "" {
			continue
		}

		size, err := io.Copy(io.Discard, part)
		if err != nil {
			return nil, err
		}
		return &FileMeta{
			ContentType: part.Header.Get("Content-Type"),
			Filename:    part.FileName(),
			SizeBytes:   size,
		}, nil
	}
}

// CanonicalJSON parses a JSON body and re-serializes it to a canonical
// string for audit logging.
func CanonicalJSON(body []byte) (string, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return "", err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func isMultipart(contentType string) bool {
	return strings.Contains(contentType, "multipart/form-data")
}

func isJSON(contentType string) bool {
	return strings.Contains(contentType, "application/json")
}
