package http

import (
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chmicro/chmicro/core/status"
)

// ClientResponse is the result of a successful one-shot GET.
type ClientResponse struct {
	Status      int
	Body        []byte
	ContentType string // "" when the server sent none
}

// Get performs a blocking one-shot GET: resolve, connect, write, read the
// full response, shut down. A single deadline bounds the whole operation;
// when it fires the call fails with a timeout status. Any transport error
// maps to unavailable.
func Get(host, port, target string, timeout time.Duration) (ClientResponse, error) {
	deadline := time.Now().Add(timeout)

	d := net.Dialer{Deadline: deadline}
	conn, err := d.Dial("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return ClientResponse{}, classifyClientError(err)
	}
	defer conn.Close()
	conn.SetDeadline(deadline)

	var req bytes.Buffer
	req.WriteString("GET " + target + " HTTP/1.1\r\n")
	req.WriteString("Host: " + host + "\r\n")
	req.WriteString("User-Agent: chmicro/0.1\r\n")
	req.WriteString("\r\n")
	if _, err := conn.Write(req.Bytes()); err != nil {
		return ClientResponse{}, classifyClientError(err)
	}

	resp, err := readClientResponse(conn)
	if err != nil {
		return ClientResponse{}, classifyClientError(err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		tc.CloseWrite()
	}
	return resp, nil
}

// readClientResponse reads one response message: headers, then the declared
// Content-Length worth of body, or until EOF when no length was declared.
func readClientResponse(conn net.Conn) (ClientResponse, error) {
	var buf []byte
	chunk := make([]byte, 4096)

	headerEnd := -1
	for headerEnd == -1 {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			headerEnd = bytes.Index(buf, []byte("\r\n\r\n"))
		}
		if err != nil {
			if errors.Is(err, io.EOF) && headerEnd != -1 {
				break
			}
			return ClientResponse{}, err
		}
	}

	head := string(buf[:headerEnd])
	body := buf[headerEnd+4:]

	lines := strings.Split(head, "\r\n")
	if len(lines) == 0 {
		return ClientResponse{}, errMalformed
	}
	parts := strings.SplitN(lines[0], " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return ClientResponse{}, errMalformed
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return ClientResponse{}, errMalformed
	}

	contentType := ""
	contentLength := -1
	for _, line := range lines[1:] {
		name, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "content-type":
			contentType = value
		case "content-length":
			if n, err := strconv.Atoi(value); err == nil && n >= 0 {
				contentLength = n
			}
		}
	}

	if contentLength >= 0 {
		for len(body) < contentLength {
			n, err := conn.Read(chunk)
			if n > 0 {
				body = append(body, chunk[:n]...)
			}
			if err != nil {
				return ClientResponse{}, err
			}
		}
		body = body[:contentLength]
	} else {
		for {
			n, err := conn.Read(chunk)
			if n > 0 {
				body = append(body, chunk[:n]...)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return ClientResponse{}, err
			}
		}
	}

	return ClientResponse{Status: code, Body: body, ContentType: contentType}, nil
}

func classifyClientError(err error) error {
	var nerr net.Error
	if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return status.New(status.Timeout, "http client timeout")
	}
	return status.Errorf(status.Unavailable, "%v", err)
}
