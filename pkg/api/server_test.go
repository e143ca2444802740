package api

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"
)

func TestNewHTTPServer(t *testing.T) {
	server := NewHTTPServer(testConfig(), testLogger(), createTestHandlers(t))

	if server == nil {
		t.Fatal("NewHTTPServer returned nil")
	}
	if server.server == nil {
		t.Error("HTTP server not initialized")
	}
	if server.router == nil {
		t.Error("Router not initialized")
	}
	if server.server.Addr != "127.0.0.1:8080" {
		t.Errorf("Addr = %q, want 127.0.0.1:8080", server.server.Addr)
	}
}

func TestHTTPServer_ServeAndShutdown(t *testing.T) {
	server := NewHTTPServer(testConfig(), testLogger(), createTestHandlers(t))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("Failed to connect to server: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Health check status = %v, want %v", resp.StatusCode, http.StatusOK)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Serve() returned error: %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Error("Serve() did not return after shutdown")
	}
}
