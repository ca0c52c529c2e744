package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPostStreamNon2xxReturnsClientError(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantCode   string
		wantDetail string
	}{
		{
			name:     "rate limited with provider error body",
			status:   http.StatusTooManyRequests,
			body:     `{"error":{"message":"slow down","type":"rate_limit_error"}}`,
			wantCode: CodeRateLimited,
		},
		{
			name:     "payload too large",
			status:   http.StatusRequestEntityTooLarge,
			body:     "",
			wantCode: CodeContentTooLarge,
		},
		{
			name:     "not found",
			status:   http.StatusNotFound,
			body:     `{"error":{"message":"model missing"}}`,
			wantCode: CodeNotFound,
		},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			body:     "boom",
			wantCode: CodeUpstreamError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL)
			_, err := c.PostStream(context.Background(), "/chat/completions", map[string]any{"model": "m"})
			if err == nil {
				t.Fatal("expected error")
			}

			var ce *ClientError
			if !errors.As(err, &ce) {
				t.Fatalf("error %v is not *ClientError", err)
			}
			if ce.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", ce.StatusCode, tt.status)
			}
			if ce.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", ce.Code, tt.wantCode)
			}
		})
	}
}

func TestPostStreamExtractsProviderMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"tokens exhausted","type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).PostStream(context.Background(), "/chat/completions", nil)
	var ce *ClientError
	if !errors.As(err, &ce) {
		t.Fatalf("error %v is not *ClientError", err)
	}
	if ce.Message != "tokens exhausted" {
		t.Errorf("message = %q, want provider message", ce.Message)
	}
	if ce.Details["type"] != "rate_limit_error" {
		t.Errorf("details = %v, want type rate_limit_error", ce.Details)
	}
}

func TestPostStreamSetsHeaders(t *testing.T) {
	var gotAuth, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Header{Key: "Authorization", Value: "Bearer secret"})
	resp, err := c.PostStream(context.Background(), "/chat/completions", nil)
	if err != nil {
		t.Fatalf("PostStream: %v", err)
	}
	defer resp.Body.Close()

	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotAccept != "text/event-stream" {
		t.Errorf("Accept = %q", gotAccept)
	}
}

func TestGetJSONDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"m1"}]}`))
	}))
	defer srv.Close()

	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := NewClient(srv.URL).GetJSON(context.Background(), "/models", &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if len(out.Data) != 1 || out.Data[0].ID != "m1" {
		t.Errorf("decoded %+v", out)
	}
}

func TestGetJSONNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	var out any
	err := NewClient(srv.URL).GetJSON(context.Background(), "/models", &out)
	var ce *ClientError
	if !errors.As(err, &ce) {
		t.Fatalf("error %v is not *ClientError", err)
	}
	if ce.Code != CodeUnauthorized {
		t.Errorf("code = %q, want %q", ce.Code, CodeUnauthorized)
	}
}
