package adaptation

import (
	"bytes"
	"context"
	"log"
	"net"
	"strings"
	"time"

	"github.com/silexa/gateway-sidecar/internal/credential"
)

const readTimeout = 10 * time.Second

// Server accepts adaptation-protocol connections and rewrites outbound
// LLM API requests to carry the gateway's live credential instead of a
// client-supplied placeholder (spec.md §4.5).
type Server struct {
	credentials  *credential.Store
	upstreamHost string
	logger       *log.Logger
}

func NewServer(credentials *credential.Store, upstreamHost string, logger *log.Logger) *Server {
	return &Server{credentials: credentials, upstreamHost: upstreamHost, logger: logger}
}

// Serve accepts connections on ln until ctx is canceled. Each connection
// is handled by its own goroutine, one worker per connection per
// spec.md §4.5's concurrency note.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.logf("accept error: %v", err)
				continue
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	data, err := readInitial(conn, readTimeout)
	if err != nil || len(data) == 0 {
		return
	}

	req, ok := ParseRequest(data)
	if !ok {
		_, _ = conn.Write(buildResponse(responseSpec{Status: 400, StatusText: "Bad Request", Headers: map[string]string{}}))
		return
	}

	var resp []byte
	switch req.Method {
	case "OPTIONS":
		resp = s.handleOptions()
	case "REQMOD":
		if req.IsPreviewRequest() {
			if _, err := conn.Write([]byte(protocolVersion + " 100 Continue\r\n\r\n")); err != nil {
				return
			}
			body, err := readUntilChunkedTerminator(conn, readTimeout)
			if err != nil {
				return
			}
			req.HTTPRequestBody = body
		}
		resp = s.handleREQMOD(req)
	default:
		resp = buildResponse(responseSpec{
			Status:     405,
			StatusText: "Method Not Allowed",
			Headers:    map[string]string{"Allow": "OPTIONS, REQMOD"},
		})
	}

	_, _ = conn.Write(resp)
}

func (s *Server) handleOptions() []byte {
	return buildResponse(responseSpec{
		Status:     200,
		StatusText: "OK",
		Headers: map[string]string{
			"Methods":          "REQMOD",
			"Service":          "Gateway Credential Injection Service",
			"ISTag":            serviceISTag,
			"Max-Connections":  "100",
			"Options-TTL":      "3600",
			"Preview":          "0",
			"Transfer-Preview": "*",
			"Allow":            "204",
		},
	})
}

func (s *Server) handleREQMOD(req *Request) []byte {
	cred := s.credentials.Current()

	httpHeaders := req.HTTPRequestHeaders
	if !bytes.Contains(httpHeaders, []byte(s.upstreamHost)) && bytes.Contains(httpHeaders, []byte("Host:")) {
		return buildResponse(responseSpec{Status: 204, StatusText: "No Content", Headers: map[string]string{"ISTag": serviceISTag}})
	}

	headerName, headerValue := "", ""
	if cred == nil {
		s.logf("no valid credential; stripping placeholder and forwarding with no injected credential")
	} else {
		headerName, headerValue = cred.HeaderName, cred.HeaderValue
	}

	// Even with no credential, the client's placeholder header must still
	// be stripped so it never reaches the upstream (spec.md §4.5, §7).
	modifiedHeaders := injectAuthHeader(httpHeaders, headerName, headerValue)

	var body []byte
	if len(req.HTTPRequestBody) > 0 {
		body = req.HTTPRequestBody
	}

	return buildResponse(responseSpec{
		Status:             200,
		StatusText:         "OK",
		Headers:            map[string]string{"ISTag": serviceISTag},
		HTTPHeaders:        modifiedHeaders,
		HTTPBody:           body,
		BodyAlreadyChunked: true,
	})
}

// readInitial reads until the request looks complete: OPTIONS requests
// are done after the header block; REQMOD requests are done once a
// null-body offset or a chunked terminator has arrived, mirroring
// read_icap_data.
func readInitial(conn net.Conn, timeout time.Duration) ([]byte, error) {
	var data []byte
	buf := make([]byte, 65536)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return data, err
		}
		n, err := conn.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
			if bytes.Contains(data, []byte("\r\n\r\n")) {
				if bytes.HasPrefix(data, []byte("OPTIONS")) {
					return data, nil
				}
				if strings.Contains(string(data), "null-body=") {
					return data, nil
				}
				if bytes.Contains(data, []byte(chunkedTerminator)) {
					return data, nil
				}
			}
		}
		if err != nil {
			return data, nil // timeout or EOF: return what we have, same as the original's TimeoutError handling
		}
	}
}

// readUntilChunkedTerminator reads a preview request's deferred full
// body after sending 100 Continue.
func readUntilChunkedTerminator(conn net.Conn, timeout time.Duration) ([]byte, error) {
	var data []byte
	buf := make([]byte, 65536)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return data, err
		}
		n, err := conn.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
			if bytes.Contains(data, []byte(chunkedTerminator)) {
				return data, nil
			}
		}
		if err != nil {
			return data, nil
		}
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
