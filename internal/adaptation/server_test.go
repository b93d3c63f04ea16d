package adaptation

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/silexa/gateway-sidecar/internal/credential"
)

func startTestServer(t *testing.T, credPath string) (net.Listener, func()) {
	t.Helper()
	store := credential.NewStore(credPath, credential.KindAPIKey)
	srv := NewServer(store, "api.upstream", nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx, ln)

	return ln, func() {
		cancel()
		ln.Close()
	}
}

func writeTestCredential(t *testing.T, value string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cred.txt")
	if err := os.WriteFile(path, []byte(value), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func dial(t *testing.T, ln net.Listener) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", ln.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	conn.SetDeadline(time.Now().Add(3 * time.Second))
	return conn
}

func TestServerHandlesOptionsHandshake(t *testing.T) {
	ln, stop := startTestServer(t, writeTestCredential(t, "sk-live-123"))
	defer stop()

	conn := dial(t, ln)
	defer conn.Close()

	if _, err := conn.Write(buildRawOptionsRequest()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	resp := string(buf[:n])
	if !strings.Contains(resp, "200") {
		t.Fatalf("expected a 200 OPTIONS response, got %q", resp)
	}
	if !strings.Contains(resp, "Methods: REQMOD") {
		t.Fatalf("expected Methods header, got %q", resp)
	}
}

func TestServerInjectsCredentialOnREQMODWithoutPreview(t *testing.T) {
	ln, stop := startTestServer(t, writeTestCredential(t, "sk-live-123"))
	defer stop()

	conn := dial(t, ln)
	defer conn.Close()

	httpHeaders := "GET /v1/messages HTTP/1.1\r\nHost: api.upstream\r\nx-api-key: placeholder\r\n\r\n"
	raw := buildRawREQMOD(httpHeaders, "5\r\nhello\r\n0\r\n\r\n")
	if _, err := conn.Write(raw); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 8192)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	resp := string(buf[:n])
	if !strings.Contains(resp, "200") {
		t.Fatalf("expected a 200 response, got %q", resp)
	}
	if !strings.Contains(resp, "x-api-key: sk-live-123") {
		t.Fatalf("expected injected credential, got %q", resp)
	}
}

func TestServerNoCredentialStripsPlaceholderAndReturns200(t *testing.T) {
	ln, stop := startTestServer(t, filepath.Join(t.TempDir(), "missing-cred.txt"))
	defer stop()

	conn := dial(t, ln)
	defer conn.Close()

	httpHeaders := "GET /v1/messages HTTP/1.1\r\nHost: api.upstream\r\nx-api-key: placeholder\r\n\r\n"
	raw := buildRawREQMOD(httpHeaders, "5\r\nhello\r\n0\r\n\r\n")
	if _, err := conn.Write(raw); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	resp := string(buf[:n])
	if !strings.Contains(resp, "200") {
		t.Fatalf("expected 200 with no modification other than stripping, got %q", resp)
	}
	if strings.Contains(resp, "x-api-key: placeholder") {
		t.Fatalf("expected client placeholder to be stripped even with no credential, got %q", resp)
	}
}

func TestServerWrongHostReturns204(t *testing.T) {
	ln, stop := startTestServer(t, writeTestCredential(t, "sk-live-123"))
	defer stop()

	conn := dial(t, ln)
	defer conn.Close()

	httpHeaders := "GET / HTTP/1.1\r\nHost: some-other-host\r\n\r\n"
	raw := buildRawREQMOD(httpHeaders, "")
	if _, err := conn.Write(raw); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !strings.Contains(string(buf[:n]), "204") {
		t.Fatalf("expected 204 for wrong host, got %q", string(buf[:n]))
	}
}

func TestServerREQMODWithPreviewSendsContinueThenInjects(t *testing.T) {
	ln, stop := startTestServer(t, writeTestCredential(t, "sk-live-999"))
	defer stop()

	conn := dial(t, ln)
	defer conn.Close()

	httpHeaders := "POST /v1/messages HTTP/1.1\r\nHost: api.upstream\r\nx-api-key: placeholder\r\n\r\n"
	previewReq := buildRawREQMOD(httpHeaders, "0\r\n\r\n")
	if _, err := conn.Write(previewReq); err != nil {
		t.Fatalf("Write preview: %v", err)
	}

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read continue: %v", err)
	}
	if !strings.Contains(string(buf[:n]), "100 Continue") {
		t.Fatalf("expected 100 Continue, got %q", string(buf[:n]))
	}

	fullBody := []byte("5\r\nhello\r\n0\r\n\r\n")
	if _, err := conn.Write(fullBody); err != nil {
		t.Fatalf("Write full body: %v", err)
	}

	n, err = conn.Read(buf)
	if err != nil {
		t.Fatalf("Read final response: %v", err)
	}
	resp := string(buf[:n])
	if !strings.Contains(resp, "200") {
		t.Fatalf("expected a 200 final response, got %q", resp)
	}
	if !strings.Contains(resp, "x-api-key: sk-live-999") {
		t.Fatalf("expected injected credential in final response, got %q", resp)
	}
	if !bytes.Contains(buf[:n], []byte("hello")) {
		t.Fatalf("expected body to be forwarded, got %q", resp)
	}
}
