package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apihttp "github.com/svcgate/gateway/adapters/http"
	"github.com/svcgate/gateway/domain/proxy"
)

func TestNewUpstreamClient_Defaults(t *testing.T) {
	client := apihttp.NewUpstreamClient(apihttp.UpstreamConfig{})
	if client == nil {
		t.Fatal("expected non-nil client")
	}
	defer client.Close()
}

func TestUpstreamClient_Do_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test") != "1" {
			t.Errorf("expected forwarded header, got %q", r.Header.Get("X-Test"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := apihttp.NewUpstreamClient(apihttp.UpstreamConfig{})
	defer client.Close()

	req := proxy.UpstreamRequest{
		URL:     srv.URL + "/path",
		Method:  http.MethodGet,
		Headers: http.Header{"X-Test": []string{"1"}},
	}

	resp, outcome, err := client.Do(context.Background(), req, 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != proxy.OutcomeSuccess {
		t.Errorf("outcome = %v, want success", outcome)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.Status)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("body = %q", resp.Body)
	}
}

func TestUpstreamClient_Do_StripsHopByHopHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Keep", "yes")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := apihttp.NewUpstreamClient(apihttp.UpstreamConfig{})
	defer client.Close()

	resp, _, err := client.Do(context.Background(), proxy.UpstreamRequest{
		URL:    srv.URL,
		Method: http.MethodGet,
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Headers.Get("Connection") != "" {
		t.Error("hop-by-hop header should have been stripped")
	}
	if resp.Headers.Get("X-Keep") != "yes" {
		t.Error("non-hop-by-hop header should survive")
	}
}

func TestUpstreamClient_Do_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := apihttp.NewUpstreamClient(apihttp.UpstreamConfig{})
	defer client.Close()

	_, outcome, err := client.Do(context.Background(), proxy.UpstreamRequest{
		URL:    srv.URL,
		Method: http.MethodGet,
	}, 5*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if outcome != proxy.OutcomeTimeout {
		t.Errorf("outcome = %v, want timeout", outcome)
	}
}

func TestUpstreamClient_Do_NetworkError(t *testing.T) {
	client := apihttp.NewUpstreamClient(apihttp.UpstreamConfig{})
	defer client.Close()

	_, outcome, err := client.Do(context.Background(), proxy.UpstreamRequest{
		URL:    "http://127.0.0.1:1", // nothing listens here
		Method: http.MethodGet,
	}, 2*time.Second)
	if err == nil {
		t.Fatal("expected network error")
	}
	if outcome != proxy.OutcomeNetworkError {
		t.Errorf("outcome = %v, want network error", outcome)
	}
}

func TestUpstreamClient_Do_RefusesPrivateDialTarget(t *testing.T) {
	client := apihttp.NewUpstreamClient(apihttp.UpstreamConfig{})
	defer client.Close()

	// localhost resolves to a loopback address; the dial guard should
	// refuse it even though nothing blocked it at the URL-parsing stage.
	_, outcome, err := client.Do(context.Background(), proxy.UpstreamRequest{
		URL:    "http://localhost:1/",
		Method: http.MethodGet,
	}, 2*time.Second)
	if err == nil {
		t.Fatal("expected dial to be refused for a private resolved address")
	}
	if outcome != proxy.OutcomeNetworkError {
		t.Errorf("outcome = %v, want network error", outcome)
	}
}
