package http

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
)

var (
	// errIncomplete means more bytes are needed before a request can be
	// decoded; the session keeps reading.
	errIncomplete = errors.New("http: incomplete request")

	errMalformed = errors.New("http: malformed request")
)

// parseRequest decodes one complete request from the front of buf and
// reports how many bytes it consumed. It returns errIncomplete while the
// head line, headers, or declared body are still partial.
func parseRequest(buf []byte) (*Request, int, error) {
	headerEnd := bytes.Index(buf, []byte("\r\n\r\n"))
	sepLen := 4
	if headerEnd == -1 {
		headerEnd = bytes.Index(buf, []byte("\n\n"))
		sepLen = 2
	}
	if headerEnd == -1 {
		return nil, 0, errIncomplete
	}

	head := buf[:headerEnd]
	lineEnd := bytes.IndexByte(head, '\n')
	if lineEnd == -1 {
		lineEnd = len(head)
	}
	line := trimCR(head[:lineEnd])

	sp1 := bytes.IndexByte(line, ' ')
	if sp1 <= 0 {
		return nil, 0, errMalformed
	}
	sp2 := bytes.IndexByte(line[sp1+1:], ' ')
	if sp2 == -1 {
		return nil, 0, errMalformed
	}
	sp2 += sp1 + 1

	req := &Request{
		Method:  string(line[:sp1]),
		Proto:   string(line[sp2+1:]),
		Headers: make(map[string]string),
	}

	target := string(line[sp1+1 : sp2])
	req.Path = extractPath(target)
	req.Query = parseQuery(target)

	if lineEnd < len(head) {
		parseHeaders(req, head[lineEnd+1:])
	}

	bodyStart := headerEnd + sepLen
	contentLength := 0
	if cl := req.Header("content-length"); cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return nil, 0, errMalformed
		}
		contentLength = n
	}
	if len(buf) < bodyStart+contentLength {
		return nil, 0, errIncomplete
	}
	if contentLength > 0 {
		req.Body = append([]byte(nil), buf[bodyStart:bodyStart+contentLength]...)
	}

	return req, bodyStart + contentLength, nil
}

// extractPath returns the target substring before the first '?'.
func extractPath(target string) string {
	if q := strings.IndexByte(target, '?'); q != -1 {
		return target[:q]
	}
	return target
}

// parseQuery splits the query string on '&' then '='. Duplicate keys keep
// the first occurrence; an empty value is preserved. A part without '=' maps
// the whole part to "".
func parseQuery(target string) map[string]string {
	q := strings.IndexByte(target, '?')
	if q == -1 || q+1 >= len(target) {
		return nil
	}

	out := make(map[string]string)
	for _, part := range strings.Split(target[q+1:], "&") {
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			key, value = part, ""
		}
		if key == "" {
			continue
		}
		if _, dup := out[key]; !dup {
			out[key] = value
		}
	}
	return out
}

func parseHeaders(req *Request, data []byte) {
	for len(data) > 0 {
		lineEnd := bytes.IndexByte(data, '\n')
		if lineEnd == -1 {
			lineEnd = len(data)
		}
		line := trimCR(data[:lineEnd])
		if len(line) > 0 {
			if colon := bytes.IndexByte(line, ':'); colon > 0 {
				name := strings.ToLower(string(bytes.TrimSpace(line[:colon])))
				value := string(bytes.TrimSpace(line[colon+1:]))
				req.Headers[name] = value
			}
		}
		if lineEnd == len(data) {
			break
		}
		data = data[lineEnd+1:]
	}
}

func trimCR(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		return line[:n-1]
	}
	return line
}
