package http

import "encoding/json"

// DefaultContentType is the content type of a response nobody touched.
const DefaultContentType = "text/plain; charset=utf-8"

// JSONContentType is used for JSON bodies, including framework error bodies.
const JSONContentType = "application/json; charset=utf-8"

// Response is the mutable reply a handler fills in. The session encodes it
// after the router returns; handler-set headers are written last and win
// over the framework's defaults on collision.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
	Headers     map[string]string
}

// NewResponse returns a response with status 200 and the default text
// content type.
func NewResponse() *Response {
	return &Response{
		Status:      200,
		ContentType: DefaultContentType,
	}
}

// SetHeader sets a user header, overwriting any prior value.
func (r *Response) SetHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[name] = value
}

// Text replaces the response with a plain-text body.
func (r *Response) Text(status int, body string) {
	r.Status = status
	r.ContentType = DefaultContentType
	r.Body = []byte(body)
}

// JSON replaces the response with a marshaled JSON body. A marshal failure
// degrades to a 500 with a JSON error body.
func (r *Response) JSON(status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		r.Status = 500
		r.ContentType = JSONContentType
		r.Body = []byte(`{"error":"internal_error"}`)
		return
	}
	r.Status = status
	r.ContentType = JSONContentType
	r.Body = data
}

// SetJSONString replaces the body with pre-rendered JSON.
func (r *Response) SetJSONString(status int, body string) {
	r.Status = status
	r.ContentType = JSONContentType
	r.Body = []byte(body)
}
