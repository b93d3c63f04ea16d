// Package adaptation implements the request-adaptation protocol used by
// the local outbound proxy for credential injection (spec.md §4.5),
// translated line for line from
// _examples/original_source/gateway-sidecar/anthropic_icap_server.py
// into idiomatic Go.
package adaptation

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

const (
	protocolVersion = "ICAP/1.0"
	serviceISTag    = `"gateway-auth-1"`

	// chunkedTerminator is the 5-byte sentinel that ends a chunked HTTP
	// body; a preview body consisting only of this means the full body
	// has not arrived yet (spec.md §4.5, §8).
	chunkedTerminator = "0\r\n\r\n"
)

// Request is a parsed adaptation-protocol request.
type Request struct {
	Method      string
	URI         string
	Version     string
	Headers     map[string]string
	Encapsulated map[string]int

	HTTPRequestHeaders []byte
	HTTPRequestBody    []byte
}

// ParseRequest parses a raw adaptation-protocol request, mirroring
// parse_icap_request. It returns (nil, false) on any malformed input —
// the caller responds with a generic bad-request status, never panics.
func ParseRequest(data []byte) (*Request, bool) {
	headerEnd := bytes.Index(data, []byte("\r\n\r\n"))
	if headerEnd < 0 {
		return nil, false
	}
	headerSection := string(data[:headerEnd])
	bodySection := data[headerEnd+4:]

	lines := strings.Split(headerSection, "\r\n")
	if len(lines) == 0 {
		return nil, false
	}

	requestLine := strings.SplitN(lines[0], " ", 3)
	if len(requestLine) < 3 {
		return nil, false
	}

	req := &Request{
		Method:       requestLine[0],
		URI:          requestLine[1],
		Version:      requestLine[2],
		Headers:      map[string]string{},
		Encapsulated: map[string]int{},
	}

	for _, line := range lines[1:] {
		key, value, ok := strings.Cut(line, ": ")
		if ok {
			req.Headers[strings.ToLower(key)] = value
		}
	}

	if enc, ok := req.Headers["encapsulated"]; ok {
		for _, part := range strings.Split(enc, ",") {
			part = strings.TrimSpace(part)
			name, offset, ok := strings.Cut(part, "=")
			if !ok {
				continue
			}
			n, err := strconv.Atoi(strings.TrimSpace(offset))
			if err != nil {
				continue
			}
			req.Encapsulated[strings.TrimSpace(name)] = n
		}
	}

	if hdrStart, ok := req.Encapsulated["req-hdr"]; ok {
		hdrEnd := len(bodySection)
		if v, ok := req.Encapsulated["req-body"]; ok {
			hdrEnd = v
		} else if v, ok := req.Encapsulated["null-body"]; ok {
			hdrEnd = v
		}
		if hdrStart >= 0 && hdrEnd <= len(bodySection) && hdrStart <= hdrEnd {
			req.HTTPRequestHeaders = bodySection[hdrStart:hdrEnd]
		}
	}

	if bodyStart, ok := req.Encapsulated["req-body"]; ok && bodyStart >= 0 && bodyStart <= len(bodySection) {
		req.HTTPRequestBody = bodySection[bodyStart:]
	}

	return req, true
}

// IsPreviewRequest reports whether the request carries only the
// chunked-terminator sentinel as its body — the signal that the proxy
// is waiting for a 100-Continue before sending the rest.
func (r *Request) IsPreviewRequest() bool {
	_, hasBody := r.Encapsulated["req-body"]
	return hasBody && string(r.HTTPRequestBody) == chunkedTerminator
}

// responseSpec is everything needed to render one adaptation-protocol
// response.
type responseSpec struct {
	Status      int
	StatusText  string
	Headers     map[string]string
	HTTPHeaders []byte // nil means "no encapsulated content at all"
	HTTPBody    []byte
	// BodyAlreadyChunked is always true in this server: the only body
	// bytes we ever re-encapsulate are the chunked bytes read verbatim
	// from the proxy, never a body we chunk ourselves.
	BodyAlreadyChunked bool
}

// buildResponse renders a responseSpec, mirroring build_icap_response.
func buildResponse(spec responseSpec) []byte {
	var out bytes.Buffer

	headers := make(map[string]string, len(spec.Headers)+1)
	for k, v := range spec.Headers {
		headers[k] = v
	}

	if spec.HTTPHeaders != nil {
		offset := len(spec.HTTPHeaders)
		var encapsulated string
		if len(spec.HTTPBody) > 0 {
			encapsulated = fmt.Sprintf("req-hdr=0, req-body=%d", offset)
		} else {
			encapsulated = fmt.Sprintf("req-hdr=0, null-body=%d", offset)
		}
		headers["Encapsulated"] = encapsulated
	}

	out.WriteString(fmt.Sprintf("%s %d %s\r\n", protocolVersion, spec.Status, spec.StatusText))
	for k, v := range headers {
		out.WriteString(k)
		out.WriteString(": ")
		out.WriteString(v)
		out.WriteString("\r\n")
	}
	out.WriteString("\r\n")

	if spec.HTTPHeaders != nil {
		out.Write(spec.HTTPHeaders)
		if len(spec.HTTPBody) > 0 {
			if spec.BodyAlreadyChunked {
				out.Write(spec.HTTPBody)
			} else {
				out.WriteString(fmt.Sprintf("%x\r\n", len(spec.HTTPBody)))
				out.Write(spec.HTTPBody)
				out.WriteString("\r\n0\r\n\r\n")
			}
		}
	}

	return out.Bytes()
}

var strippedHeaderPrefixes = []string{"x-api-key:", "authorization:"}

// injectAuthHeader strips any client-supplied x-api-key/Authorization
// header and inserts the real credential header just before the empty
// line that terminates the HTTP header block, mirroring
// inject_auth_header. The placeholder is stripped even when
// headerName/headerValue are empty, so a caller can still use this to
// strip-only.
func injectAuthHeader(httpHeaders []byte, headerName, headerValue string) []byte {
	lines := strings.Split(string(httpHeaders), "\r\n")

	result := make([]string, 0, len(lines)+1)
	inserted := false
	for i, line := range lines {
		lower := strings.ToLower(line)
		stripped := false
		for _, prefix := range strippedHeaderPrefixes {
			if strings.HasPrefix(lower, prefix) {
				stripped = true
				break
			}
		}
		if stripped {
			continue
		}

		if line == "" && i > 0 && !inserted && headerName != "" {
			result = append(result, headerName+": "+headerValue)
			inserted = true
		}
		result = append(result, line)
	}

	return []byte(strings.Join(result, "\r\n"))
}
