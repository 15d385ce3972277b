package http

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chmicro/chmicro/core/ioloop"
	"github.com/chmicro/chmicro/core/metrics"
	"github.com/chmicro/chmicro/core/trace"
)

// startTestServer brings up a server on an ephemeral port with its own pool.
func startTestServer(t *testing.T, router *Router) (*Server, func()) {
	t.Helper()
	pool, err := ioloop.NewPool(2)
	require.NoError(t, err)
	pool.Start()

	srv := NewServer(pool, ListenAddress{Host: "127.0.0.1", Port: 0}, router)
	srv.Start()
	require.NotZero(t, srv.Port(), "server failed to bind")

	return srv, func() {
		srv.Stop()
		pool.Stop()
	}
}

func testRouter() *Router {
	r := NewRouter()
	r.GET("/health", func(req *Request, resp *Response) {
		resp.Text(200, "ok")
	})
	r.GET("/hello", func(req *Request, resp *Response) {
		name := req.QueryValue("name")
		if name == "" {
			name = "world"
		}
		resp.JSON(200, map[string]string{
			"message":     "hello, " + name,
			"traceparent": req.Trace.String(),
		})
	})
	r.POST("/echo", func(req *Request, resp *Response) {
		resp.Status = 200
		resp.Body = append([]byte(nil), req.Body...)
	})
	return r
}

func TestServerHealth(t *testing.T) {
	defer leaktest.Check(t)()
	srv, shutdown := startTestServer(t, testRouter())
	defer shutdown()

	resp, err := Get("127.0.0.1", strconv.Itoa(srv.Port()), "/health", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, DefaultContentType, resp.ContentType)
}

func TestServerHelloQuery(t *testing.T) {
	srv, shutdown := startTestServer(t, testRouter())
	defer shutdown()

	port := strconv.Itoa(srv.Port())

	resp, err := Get("127.0.0.1", port, "/hello?name=ada", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Contains(t, string(resp.Body), `"message":"hello, ada"`)
	assert.Contains(t, string(resp.Body), `"traceparent":"00-`)

	resp, err = Get("127.0.0.1", port, "/hello", 2*time.Second)
	require.NoError(t, err)
	assert.Contains(t, string(resp.Body), `"message":"hello, world"`)
}

func TestServerNotFound(t *testing.T) {
	srv, shutdown := startTestServer(t, testRouter())
	defer shutdown()

	resp, err := Get("127.0.0.1", strconv.Itoa(srv.Port()), "/nope", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.Status)
	assert.Equal(t, `{"error":"not_found"}`, string(resp.Body))
	assert.Equal(t, JSONContentType, resp.ContentType)
}

func TestServerResponseHeaders(t *testing.T) {
	srv, shutdown := startTestServer(t, testRouter())
	defer shutdown()

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(srv.Port())))
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	_, err = conn.Write([]byte("GET /health HTTP/1.1\r\nHost: t\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	head := readHead(t, conn)
	assert.Contains(t, head, "Server: chmicro/0.1\r\n")
	assert.Contains(t, head, "Content-Type: "+DefaultContentType+"\r\n")

	tp := headerValue(head, "traceparent")
	require.Len(t, tp, 55)
	assert.True(t, trace.Parse(tp).Valid(), "traceparent %q must be valid", tp)
}

func TestServerTracePropagation(t *testing.T) {
	srv, shutdown := startTestServer(t, testRouter())
	defer shutdown()

	parent := trace.NewRoot()

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(srv.Port())))
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	_, err = conn.Write([]byte("GET /health HTTP/1.1\r\nHost: t\r\ntraceparent: " +
		parent.String() + "\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	head := readHead(t, conn)
	got := trace.Parse(headerValue(head, "traceparent"))
	require.True(t, got.Valid())
	assert.Equal(t, parent.TraceID, got.TraceID, "inbound trace id must be adopted")
}

func TestServerKeepAlive(t *testing.T) {
	srv, shutdown := startTestServer(t, testRouter())
	defer shutdown()

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(srv.Port())))
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	br := bufio.NewReader(conn)
	for i := 0; i < 3; i++ {
		_, err = conn.Write([]byte("GET /health HTTP/1.1\r\nHost: t\r\n\r\n"))
		require.NoError(t, err)

		status, body := readOneResponse(t, br)
		assert.Equal(t, 200, status, "request %d on the same connection", i)
		assert.Equal(t, "ok", body)
	}
}

func TestServerPipelinedRequests(t *testing.T) {
	srv, shutdown := startTestServer(t, testRouter())
	defer shutdown()

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(srv.Port())))
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	// Two requests in one write; responses must come back in order.
	_, err = conn.Write([]byte(
		"GET /health HTTP/1.1\r\nHost: t\r\n\r\n" +
			"GET /nope HTTP/1.1\r\nHost: t\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	br := bufio.NewReader(conn)
	status1, body1 := readOneResponse(t, br)
	assert.Equal(t, 200, status1)
	assert.Equal(t, "ok", body1)

	status2, body2 := readOneResponse(t, br)
	assert.Equal(t, 404, status2)
	assert.Equal(t, `{"error":"not_found"}`, body2)
}

func TestServerPostBody(t *testing.T) {
	srv, shutdown := startTestServer(t, testRouter())
	defer shutdown()

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(srv.Port())))
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	payload := `{"key":"k","value":"v"}`
	_, err = conn.Write([]byte("POST /echo HTTP/1.1\r\nHost: t\r\nContent-Length: " +
		strconv.Itoa(len(payload)) + "\r\nConnection: close\r\n\r\n" + payload))
	require.NoError(t, err)

	status, body := readOneResponse(t, bufio.NewReader(conn))
	assert.Equal(t, 200, status)
	assert.Equal(t, payload, body)
}

func TestServerRequestMetrics(t *testing.T) {
	r := testRouter()
	r.GET("/metered", func(req *Request, resp *Response) {
		resp.Text(200, "m")
	})
	srv, shutdown := startTestServer(t, r)
	defer shutdown()

	port := strconv.Itoa(srv.Port())
	for i := 0; i < 2; i++ {
		_, err := Get("127.0.0.1", port, "/metered", 2*time.Second)
		require.NoError(t, err)
	}

	text := metrics.Default().ToPrometheusText()
	assert.Contains(t, text, `http_server_requests_total{path="/metered",status="200"} 2`)
	assert.Contains(t, text, `http_server_request_ms_count{path="/metered"} 2`)
}

func TestServerStartIdempotent(t *testing.T) {
	pool, err := ioloop.NewPool(1)
	require.NoError(t, err)
	pool.Start()
	defer pool.Stop()

	srv := NewServer(pool, ListenAddress{Host: "127.0.0.1", Port: 0}, testRouter())
	srv.Start()
	port := srv.Port()
	require.NotZero(t, port)
	srv.Start() // no-op
	assert.Equal(t, port, srv.Port())

	srv.Stop()
	srv.Stop() // no-op
}

func TestServerBindFailureLeavesStopped(t *testing.T) {
	pool, err := ioloop.NewPool(1)
	require.NoError(t, err)
	pool.Start()
	defer pool.Stop()

	srv := NewServer(pool, ListenAddress{Host: "not-an-ip", Port: 0}, testRouter())
	srv.Start() // logs and stays down, no panic
	assert.False(t, srv.running.Load())
	srv.Stop() // no-op on a server that never ran
}

// readHead consumes through the blank line and returns the head text.
func readHead(t *testing.T, conn net.Conn) string {
	t.Helper()
	br := bufio.NewReader(conn)
	var b strings.Builder
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		b.WriteString(line)
		if line == "\r\n" {
			return b.String()
		}
	}
}

func headerValue(head, name string) string {
	for _, line := range strings.Split(head, "\r\n") {
		k, v, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(k), name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// readOneResponse reads one Content-Length framed response from br.
func readOneResponse(t *testing.T, br *bufio.Reader) (int, string) {
	t.Helper()
	statusLine, err := br.ReadString('\n')
	require.NoError(t, err)
	parts := strings.SplitN(statusLine, " ", 3)
	require.GreaterOrEqual(t, len(parts), 2, "status line %q", statusLine)
	code, err := strconv.Atoi(parts[1])
	require.NoError(t, err)

	contentLength := 0
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			break
		}
		k, v, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(k), "Content-Length") {
			contentLength, err = strconv.Atoi(strings.TrimSpace(v))
			require.NoError(t, err)
		}
	}

	body := make([]byte, contentLength)
	_, err = io.ReadFull(br, body)
	require.NoError(t, err)
	return code, string(body)
}
