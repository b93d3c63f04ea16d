package launcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRegisterSendsLauncherSecretAndDecodesToken(t *testing.T) {
	var got RegisterRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session/register" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(RegisterResponse{Token: "abc123"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "launcher-secret")
	resp, err := c.Register(context.Background(), "container-1", "10.0.0.9", "private")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if resp.Token != "abc123" {
		t.Fatalf("Token = %q", resp.Token)
	}
	if got.LauncherSecret != "launcher-secret" || got.ContainerID != "container-1" {
		t.Fatalf("request body mismatch: %+v", got)
	}
}

func TestRegisterNonSuccessStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("bad launcher secret"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "wrong-secret")
	if _, err := c.Register(context.Background(), "c1", "10.0.0.9", "public"); err == nil {
		t.Fatalf("expected error for 403 response")
	}
}

func TestDeleteSendsTokenAndSucceedsOnNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Fatalf("expected DELETE, got %s", r.Method)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["token"] != "some-token" {
			t.Fatalf("token = %q, want some-token", body["token"])
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "launcher-secret")
	if err := c.Delete(context.Background(), "some-token"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
