// Package http implements the framework's HTTP/1.1 serving pipeline
// (acceptor, per-connection session, router) and a one-shot client.
package http

import (
	"strings"

	"github.com/chmicro/chmicro/core/trace"
)

// Request is one decoded HTTP request. It is owned by the session that
// decoded it and must not be retained past the handler's return.
type Request struct {
	Method string
	Path   string // target before '?'
	Proto  string // echoed into the response status line

	// Query holds the parsed query string. Duplicate keys keep the first
	// occurrence; empty values are preserved.
	Query map[string]string

	// Headers holds the raw request headers with lowercased names.
	Headers map[string]string

	Body []byte

	// Trace is the resolved trace context: adopted from a valid inbound
	// traceparent header, or a fresh root otherwise.
	Trace trace.Context
}

// Header returns a header value by case-insensitive name, or "".
func (r *Request) Header(name string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers[strings.ToLower(name)]
}

// QueryValue returns a query parameter value, or "".
func (r *Request) QueryValue(name string) string {
	if r.Query == nil {
		return ""
	}
	return r.Query[name]
}

// keepAlive reports whether the connection should survive this exchange.
// HTTP/1.1 defaults to keep-alive unless the request says close; HTTP/1.0
// defaults to close unless it asks for keep-alive.
func (r *Request) keepAlive() bool {
	conn := strings.ToLower(r.Header("connection"))
	if r.Proto == "HTTP/1.0" {
		return strings.Contains(conn, "keep-alive")
	}
	return !strings.Contains(conn, "close")
}
