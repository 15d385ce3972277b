package http

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/chmicro/chmicro/core/ioloop"
	"github.com/chmicro/chmicro/core/metrics"
	"github.com/chmicro/chmicro/core/pools"
	"github.com/chmicro/chmicro/core/trace"
)

// serverHeader is stamped on every response.
const serverHeader = "chmicro/0.1"

const (
	initialReadBuf  = 8192
	maxRequestBytes = 1 << 20
)

var latencyBuckets = []float64{0.25, 0.5, 1, 2, 5, 10, 25, 50, 100}

// Session states. Within one connection requests are strictly serial:
// response N is fully written before request N+1 is handled.
const (
	stateReading = iota
	stateHandling
	stateWriting
	stateClosing
)

// session serves one accepted connection. It lives on exactly one loop, so
// no field needs locking: every callback runs on the loop thread. The loop's
// handler registry keeps the session alive until it closes itself or the
// loop aborts at shutdown.
type session struct {
	srv  *Server
	loop *ioloop.Loop
	fd   int

	state      int
	readBuf    []byte
	readLen    int
	writeBuf   []byte
	writeOff   int
	closeAfter bool
	wantWrite  bool
}

func newSession(srv *Server, loop *ioloop.Loop, fd int) error {
	s := &session{
		srv:     srv,
		loop:    loop,
		fd:      fd,
		state:   stateReading,
		readBuf: pools.GetBytes(initialReadBuf),
	}
	return loop.Register(fd, s.onEvent)
}

func (s *session) onEvent(ev ioloop.Event) {
	if s.state == stateClosing {
		return
	}
	if ev.Writable && s.state == stateWriting {
		s.flushWrite()
		if s.state == stateReading {
			s.processBuffered()
		}
	}
	if ev.Readable && s.state == stateReading {
		s.onReadable()
	}
}

func (s *session) onReadable() {
	for {
		if s.readLen == len(s.readBuf) {
			if len(s.readBuf) >= maxRequestBytes {
				s.sendErrorAndClose(413, `{"error":"payload too large"}`)
				return
			}
			grown := pools.GetBytes(len(s.readBuf) * 2)
			copy(grown, s.readBuf[:s.readLen])
			pools.PutBytes(s.readBuf)
			s.readBuf = grown
		}

		n, err := unix.Read(s.fd, s.readBuf[s.readLen:])
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			break
		}
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			// Not a clean shutdown: abort without a response.
			s.close()
			return
		}
		if n == 0 {
			// end_of_stream: peer finished, close silently.
			s.close()
			return
		}
		s.readLen += n
	}

	s.processBuffered()
}

// processBuffered decodes and serves requests already in the read buffer.
// It stops when bytes run short, a response is still flushing, or the
// session closed.
func (s *session) processBuffered() {
	for s.state == stateReading && s.readLen > 0 {
		req, consumed, err := parseRequest(s.readBuf[:s.readLen])
		if err == errIncomplete {
			return
		}
		if err != nil {
			s.sendErrorAndClose(400, `{"error":"bad request"}`)
			return
		}
		copy(s.readBuf, s.readBuf[consumed:s.readLen])
		s.readLen -= consumed

		s.state = stateHandling
		s.handle(req)
		s.state = stateWriting
		s.flushWrite()
	}
}

// handle resolves the trace context, runs the router, encodes the response,
// and records the request metrics.
func (s *session) handle(req *Request) {
	start := time.Now()

	if tp := req.Header("traceparent"); tp != "" {
		req.Trace = trace.Parse(tp)
	}
	if !req.Trace.Valid() {
		req.Trace = trace.NewRoot()
	}

	resp := NewResponse()
	s.srv.router.Handle(req, resp)

	s.closeAfter = !req.keepAlive()
	s.writeBuf = encodeResponse(req, resp, s.closeAfter)
	s.writeOff = 0

	elapsed := float64(time.Since(start)) / float64(time.Millisecond)
	reg := metrics.Default()
	reg.Histogram("http_server_request_ms", "HTTP server request latency (ms)",
		latencyBuckets, metrics.Labels{"path": req.Path}).Observe(elapsed)
	reg.Counter("http_server_requests_total", "HTTP server requests total",
		metrics.Labels{"path": req.Path, "status": strconv.Itoa(resp.Status)}).Inc(1)
}

// flushWrite pushes pending response bytes. On a full drain the session
// either closes or returns to reading; on EAGAIN it parks on write
// readiness until the socket drains.
func (s *session) flushWrite() {
	for s.writeOff < len(s.writeBuf) {
		n, err := unix.Write(s.fd, s.writeBuf[s.writeOff:])
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			if !s.wantWrite {
				s.wantWrite = true
				s.loop.SetWriteInterest(s.fd, true)
			}
			return
		}
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			s.close()
			return
		}
		s.writeOff += n
	}

	if s.wantWrite {
		s.wantWrite = false
		s.loop.SetWriteInterest(s.fd, false)
	}
	s.writeBuf = nil
	s.writeOff = 0

	if s.closeAfter {
		s.close()
		return
	}
	s.state = stateReading
}

func (s *session) sendErrorAndClose(status int, body string) {
	resp := &Response{Status: status, ContentType: JSONContentType, Body: []byte(body)}
	req := &Request{Proto: "HTTP/1.1", Trace: trace.NewRoot()}
	s.closeAfter = true
	s.writeBuf = encodeResponse(req, resp, true)
	s.writeOff = 0
	s.state = stateWriting
	s.flushWrite()
}

func (s *session) close() {
	if s.state == stateClosing {
		return
	}
	s.state = stateClosing
	s.loop.Deregister(s.fd)
	unix.Close(s.fd)
	if s.readBuf != nil {
		pools.PutBytes(s.readBuf)
		s.readBuf = nil
	}
}

// encodeResponse renders the wire form: status line echoing the request's
// HTTP version, the framework headers, user headers overlaid last (user
// wins on collision), then Content-Length and the body.
func encodeResponse(req *Request, resp *Response, closing bool) []byte {
	type headerPair struct{ name, value string }
	headers := []headerPair{
		{"Server", serverHeader},
		{"Content-Type", resp.ContentType},
		{"traceparent", req.Trace.String()},
	}
	if closing && req.Proto != "HTTP/1.0" {
		headers = append(headers, headerPair{"Connection", "close"})
	} else if !closing && req.Proto == "HTTP/1.0" {
		headers = append(headers, headerPair{"Connection", "keep-alive"})
	}

	userNames := make([]string, 0, len(resp.Headers))
	for name := range resp.Headers {
		userNames = append(userNames, name)
	}
	sort.Strings(userNames)
overlay:
	for _, name := range userNames {
		if strings.EqualFold(name, "Content-Length") {
			continue // always finalized from the body
		}
		for i := range headers {
			if strings.EqualFold(headers[i].name, name) {
				headers[i] = headerPair{name, resp.Headers[name]}
				continue overlay
			}
		}
		headers = append(headers, headerPair{name, resp.Headers[name]})
	}

	proto := req.Proto
	if proto == "" {
		proto = "HTTP/1.1"
	}

	out := make([]byte, 0, 256+len(resp.Body))
	out = append(out, proto...)
	out = append(out, ' ')
	out = strconv.AppendInt(out, int64(resp.Status), 10)
	out = append(out, ' ')
	out = append(out, statusText(resp.Status)...)
	out = append(out, "\r\n"...)
	for _, h := range headers {
		out = append(out, h.name...)
		out = append(out, ": "...)
		out = append(out, h.value...)
		out = append(out, "\r\n"...)
	}
	out = append(out, "Content-Length: "...)
	out = strconv.AppendInt(out, int64(len(resp.Body)), 10)
	out = append(out, "\r\n\r\n"...)
	out = append(out, resp.Body...)
	return out
}

func statusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 204:
		return "No Content"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	case 413:
		return "Payload Too Large"
	case 429:
		return "Too Many Requests"
	case 500:
		return "Internal Server Error"
	case 503:
		return "Service Unavailable"
	default:
		return "Unknown"
	}
}
