package formguard

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
)

// errBodyTooLarge is returned when a form body exceeds MaxFormBytes.
var errBodyTooLarge = errors.New("form body too large")

// errBadContentType is returned when a POST carries a Content-Type header
// that cannot be parsed at all.
var errBadContentType = errors.New("unparsable content type")

// multipartMemory bounds in-memory file parts while inspecting a body;
// larger parts spill to temp files that are removed after inspection.
const multipartMemory = 1 << 20

type bodyKind int

const (
	bodyNone bodyKind = iota
	bodyURLEncoded
	bodyMultipart
)

// postedForm is a snapshot of a request body taken without consuming it.
type postedForm struct {
	kind     bodyKind
	boundary string
	raw      []byte
	values   url.Values
}

// readForm buffers the body of r, parses its fields and restores r.Body so
// downstream handlers and the upstream server still receive it intact.
func readForm(r *http.Request, maxBytes int64) (*postedForm, error) {
	pf := &postedForm{values: url.Values{}}
	if r.Body == nil || r.Body == http.NoBody {
		return pf, nil
	}

	header := r.Header.Get("Content-Type")
	if strings.TrimSpace(header) == "" {
		return pf, nil
	}
	// A bad parameter still yields the media type, and form parsers
	// downstream accept it, so only a missing media type is fatal.
	ct, params, err := mime.ParseMediaType(header)
	if ct == "" {
		return nil, fmt.Errorf("%w: %v", errBadContentType, err)
	}
	if params == nil {
		params = map[string]string{}
	}
	switch ct {
	case "application/x-www-form-urlencoded":
		pf.kind = bodyURLEncoded
	case "multipart/form-data":
		pf.kind = bodyMultipart
		pf.boundary = params["boundary"]
		if pf.boundary == "" {
			return nil, errors.New("multipart body without boundary")
		}
	default:
		return pf, nil
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	_ = r.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read form body: %w", err)
	}
	if int64(len(raw)) > maxBytes {
		return nil, errBodyTooLarge
	}
	pf.raw = raw
	setBody(r, raw)

	switch pf.kind {
	case bodyURLEncoded:
		vals, err := url.ParseQuery(string(raw))
		if err != nil {
			return nil, fmt.Errorf("parse form body: %w", err)
		}
		pf.values = vals
	case bodyMultipart:
		mf, err := multipart.NewReader(bytes.NewReader(raw), pf.boundary).ReadForm(multipartMemory)
		if err != nil {
			return nil, fmt.Errorf("parse multipart body: %w", err)
		}
		defer mf.RemoveAll()
		pf.values = url.Values(mf.Value)
	}
	return pf, nil
}

// lookup returns the first value for key from the body, falling back to
// the query string.
func (pf *postedForm) lookup(r *http.Request, key string) string {
	if v := pf.values.Get(key); v != "" {
		return v
	}
	return r.URL.Query().Get(key)
}

// rewrite re-encodes the body of r without the fields drop selects. When
// clearAll is set every field, file parts included, is removed.
func (pf *postedForm) rewrite(r *http.Request, drop map[string]bool, clearAll bool) error {
	for k := range pf.values {
		if clearAll || drop[k] {
			delete(pf.values, k)
		}
	}

	switch pf.kind {
	case bodyURLEncoded:
		setBody(r, []byte(pf.values.Encode()))
	case bodyMultipart:
		out, err := rewriteMultipart(pf.raw, pf.boundary, drop, clearAll)
		if err != nil {
			return err
		}
		setBody(r, out)
	default:
		return nil
	}

	// Force downstream handlers to re-parse the stripped body.
	r.Form = nil
	r.PostForm = nil
	r.MultipartForm = nil
	return nil
}

// rewriteMultipart copies parts from raw into a new body that keeps the
// original boundary, skipping dropped fields.
func rewriteMultipart(raw []byte, boundary string, drop map[string]bool, clearAll bool) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.SetBoundary(boundary); err != nil {
		return nil, err
	}

	if !clearAll {
		mr := multipart.NewReader(bytes.NewReader(raw), boundary)
		for {
			part, err := mr.NextRawPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("read multipart part: %w", err)
			}
			if drop[part.FormName()] {
				_ = part.Close()
				continue
			}
			hdr := make(textproto.MIMEHeader, len(part.Header))
			for k, v := range part.Header {
				hdr[k] = v
			}
			dst, err := mw.CreatePart(hdr)
			if err != nil {
				return nil, err
			}
			if _, err := io.Copy(dst, part); err != nil {
				return nil, err
			}
			_ = part.Close()
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setBody(r *http.Request, b []byte) {
	r.Body = io.NopCloser(bytes.NewReader(b))
	r.ContentLength = int64(len(b))
	r.Header.Set("Content-Length", strconv.Itoa(len(b)))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	}
}

func isAJAX(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
}
