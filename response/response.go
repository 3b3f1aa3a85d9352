// Package response holds the last HTTP response received by a dispatcher and
// the assertions steps make against it.
package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Response is a fully buffered HTTP response whose body can be read any
// number of times.
type Response struct {
	StatusCode int
	Header     http.Header
	body       *bytes.Reader
}

// New reads and closes the body of resp.
func New(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		body:       bytes.NewReader(b),
	}, nil
}

// Body returns the body rewound to its start.
func (r *Response) Body() io.Reader {
	r.body.Seek(0, io.SeekStart) // nolint
	return r.body
}

func (r *Response) Bytes() []byte {
	b, _ := io.ReadAll(r.Body())
	return b
}

func (r *Response) String() string {
	return string(r.Bytes())
}

// ContentType returns the first Content-Type header value.
func (r *Response) ContentType() string {
	if v := r.Header.Values("Content-Type"); len(v) > 0 {
		return v[0]
	}
	return ""
}

// DecodeJSON decodes the body into v keeping numbers as json.Number.
func (r *Response) DecodeJSON(v interface{}) error {
	dec := json.NewDecoder(r.Body())
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding JSON response body: %w", err)
	}
	return nil
}
