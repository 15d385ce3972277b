package main

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chmicro/chmicro/core/http"
	"github.com/chmicro/chmicro/core/ioloop"
)

// startKV brings the KV service up on an ephemeral port.
func startKV(t *testing.T, maxValue int) (port string, shutdown func()) {
	t.Helper()
	pool, err := ioloop.NewPool(2)
	require.NoError(t, err)
	pool.Start()

	store := NewStore(8)
	srv := http.NewServer(pool, http.ListenAddress{Host: "127.0.0.1", Port: 0}, buildRouter(store, maxValue))
	srv.Start()
	require.NotZero(t, srv.Port())

	return strconv.Itoa(srv.Port()), func() {
		srv.Stop()
		pool.Stop()
	}
}

func postJSON(t *testing.T, port, path, body string) (int, string) {
	t.Helper()
	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", port))
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	_, err = conn.Write([]byte("POST " + path + " HTTP/1.1\r\nHost: t\r\n" +
		"Content-Type: application/json\r\nContent-Length: " + strconv.Itoa(len(body)) +
		"\r\nConnection: close\r\n\r\n" + body))
	require.NoError(t, err)

	return readResponse(t, conn)
}

func readResponse(t *testing.T, conn net.Conn) (int, string) {
	t.Helper()
	br := bufio.NewReader(conn)
	statusLine, err := br.ReadString('\n')
	require.NoError(t, err)
	parts := strings.SplitN(statusLine, " ", 3)
	require.GreaterOrEqual(t, len(parts), 2)
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
			contentLength, _ = strconv.Atoi(strings.TrimSpace(v))
		}
	}
	body := make([]byte, contentLength)
	_, err = io.ReadFull(br, body)
	require.NoError(t, err)
	return code, string(body)
}

func TestPutThenGet(t *testing.T) {
	port, shutdown := startKV(t, 4096)
	defer shutdown()

	code, body := postJSON(t, port, "/put", `{"key":"k","value":"v"}`)
	assert.Equal(t, 200, code)
	assert.Equal(t, `{"ok":true}`, body)

	resp, err := http.Get("127.0.0.1", port, "/get?key=k", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Contains(t, string(resp.Body), `"value":"v"`)
	assert.Contains(t, string(resp.Body), `"key":"k"`)
}

func TestGetMissingKey(t *testing.T) {
	port, shutdown := startKV(t, 4096)
	defer shutdown()

	resp, err := http.Get("127.0.0.1", port, "/get?key=absent", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.Status)
	assert.Contains(t, string(resp.Body), `"error":"not found"`)

	resp, err = http.Get("127.0.0.1", port, "/get", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.Status)
}

func TestPutValueTooLarge(t *testing.T) {
	port, shutdown := startKV(t, 4096)
	defer shutdown()

	big := strings.Repeat("x", 4097)
	code, body := postJSON(t, port, "/put", `{"key":"k","value":"`+big+`"}`)
	assert.Equal(t, 413, code)
	assert.Equal(t, `{"error":"value too large","max":4096}`, body)
}

func TestPutInvalidJSON(t *testing.T) {
	port, shutdown := startKV(t, 4096)
	defer shutdown()

	code, body := postJSON(t, port, "/put", `not json`)
	assert.Equal(t, 400, code)
	assert.Equal(t, `{"error":"invalid json"}`, body)

	code, body = postJSON(t, port, "/put", `{"value":"v"}`)
	assert.Equal(t, 400, code)
	assert.Equal(t, `{"error":"missing field: key"}`, body)
}

func TestStats(t *testing.T) {
	port, shutdown := startKV(t, 4096)
	defer shutdown()

	for i := 0; i < 3; i++ {
		code, _ := postJSON(t, port, "/put", `{"key":"k`+strconv.Itoa(i)+`","value":"v"}`)
		require.Equal(t, 200, code)
	}

	resp, err := http.Get("127.0.0.1", port, "/stats", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, `{"keys":3}`, string(resp.Body))
}

func TestRequestIDMiddleware(t *testing.T) {
	port, shutdown := startKV(t, 4096)
	defer shutdown()

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", port))
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	_, err = conn.Write([]byte("GET /health HTTP/1.1\r\nHost: t\r\n" +
		"x-request-id: req-77\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	br := bufio.NewReader(conn)
	var head strings.Builder
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		head.WriteString(line)
		if line == "\r\n" {
			break
		}
	}
	assert.Contains(t, head.String(), "x-request-id: req-77\r\n", "inbound request id is propagated")
	assert.Contains(t, head.String(), "x-trace-id: ")
	assert.Contains(t, head.String(), "x-span-id: ")
}

func TestCompute(t *testing.T) {
	port, shutdown := startKV(t, 4096)
	defer shutdown()

	resp, err := http.Get("127.0.0.1", port, "/compute?iters=1000", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Contains(t, string(resp.Body), `"iters":1000`)
}
