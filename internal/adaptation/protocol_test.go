package adaptation

import (
	"strings"
	"testing"
)

func buildRawOptionsRequest() []byte {
	return []byte("OPTIONS icap://gw/auth ICAP/1.0\r\nHost: gw\r\n\r\n")
}

func TestParseRequestOptions(t *testing.T) {
	req, ok := ParseRequest(buildRawOptionsRequest())
	if !ok {
		t.Fatalf("expected successful parse")
	}
	if req.Method != "OPTIONS" {
		t.Fatalf("Method = %q", req.Method)
	}
}

func TestParseRequestMalformedReturnsFalse(t *testing.T) {
	if _, ok := ParseRequest([]byte("not a request at all")); ok {
		t.Fatalf("expected parse failure for data without a header terminator")
	}
	if _, ok := ParseRequest([]byte("GET\r\n\r\n")); ok {
		t.Fatalf("expected parse failure for a request line with too few fields")
	}
}

func buildRawREQMOD(httpHeaders, httpBody string) []byte {
	icapHeaders := "REQMOD icap://gw/auth ICAP/1.0\r\n" +
		"Host: gw\r\n"

	reqHdrLen := len(httpHeaders)
	var encapsulated string
	if httpBody != "" {
		encapsulated = "Encapsulated: req-hdr=0, req-body=" + itoa(reqHdrLen) + "\r\n"
	} else {
		encapsulated = "Encapsulated: req-hdr=0, null-body=" + itoa(reqHdrLen) + "\r\n"
	}

	raw := icapHeaders + encapsulated + "\r\n" + httpHeaders + httpBody
	return []byte(raw)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestParseRequestExtractsEncapsulatedHeadersAndBody(t *testing.T) {
	httpHeaders := "GET / HTTP/1.1\r\nHost: api.upstream\r\n\r\n"
	data := buildRawREQMOD(httpHeaders, "0\r\n\r\n")

	req, ok := ParseRequest(data)
	if !ok {
		t.Fatalf("expected successful parse")
	}
	if req.Method != "REQMOD" {
		t.Fatalf("Method = %q", req.Method)
	}
	if string(req.HTTPRequestHeaders) != httpHeaders {
		t.Fatalf("HTTPRequestHeaders = %q, want %q", req.HTTPRequestHeaders, httpHeaders)
	}
	if string(req.HTTPRequestBody) != "0\r\n\r\n" {
		t.Fatalf("HTTPRequestBody = %q", req.HTTPRequestBody)
	}
}

func TestIsPreviewRequestDetectsChunkedTerminatorOnly(t *testing.T) {
	httpHeaders := "GET / HTTP/1.1\r\nHost: api.upstream\r\n\r\n"
	data := buildRawREQMOD(httpHeaders, "0\r\n\r\n")

	req, ok := ParseRequest(data)
	if !ok {
		t.Fatalf("expected successful parse")
	}
	if !req.IsPreviewRequest() {
		t.Fatalf("expected a preview request for chunked-terminator-only body")
	}
}

func TestIsPreviewRequestFalseForNullBody(t *testing.T) {
	httpHeaders := "GET / HTTP/1.1\r\nHost: api.upstream\r\n\r\n"
	data := buildRawREQMOD(httpHeaders, "")

	req, ok := ParseRequest(data)
	if !ok {
		t.Fatalf("expected successful parse")
	}
	if req.IsPreviewRequest() {
		t.Fatalf("a null-body request is never a preview request")
	}
}

func TestInjectAuthHeaderStripsPlaceholderAndInsertsCredential(t *testing.T) {
	headers := "GET / HTTP/1.1\r\nHost: api.upstream\r\nx-api-key: placeholder-abc\r\n\r\n"

	out := injectAuthHeader([]byte(headers), "Authorization", "Bearer real-oauth-token")
	result := string(out)

	if strings.Contains(strings.ToLower(result), "x-api-key") {
		t.Fatalf("placeholder header was not stripped: %q", result)
	}
	if strings.Count(result, "Authorization: Bearer real-oauth-token") != 1 {
		t.Fatalf("expected exactly one injected Authorization header, got: %q", result)
	}
}

func TestInjectAuthHeaderStripsPlaceholderEvenWithNoCredential(t *testing.T) {
	headers := "GET / HTTP/1.1\r\nHost: api.upstream\r\nAuthorization: Bearer placeholder\r\n\r\n"

	out := injectAuthHeader([]byte(headers), "", "")
	result := string(out)

	if strings.Contains(strings.ToLower(result), "authorization") {
		t.Fatalf("placeholder header must be stripped even with no real credential: %q", result)
	}
}

func TestBuildResponseEncodesNullBodyEncapsulation(t *testing.T) {
	resp := buildResponse(responseSpec{
		Status:      200,
		StatusText:  "OK",
		Headers:     map[string]string{"ISTag": serviceISTag},
		HTTPHeaders: []byte("GET / HTTP/1.1\r\n\r\n"),
	})

	if !strings.Contains(string(resp), "null-body=") {
		t.Fatalf("expected a null-body encapsulation offset, got: %q", resp)
	}
}
