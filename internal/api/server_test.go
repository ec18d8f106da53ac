package api

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestServer_StartAndShutdown(t *testing.T) {
	a := newTestAPI(t)
	srv := NewServer(ServerConfig{
		Port:       0,
		Editor:     a.ed,
		Repository: a.repo,
		Logger:     testLogger(),
		StartTime:  time.Now(),
	})

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	deadline := time.Now().Add(2 * time.Second)
	for strings.HasSuffix(srv.Addr(), ":0") {
		if time.Now().After(deadline) {
			t.Fatal("server never bound")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !strings.HasPrefix(srv.Addr(), "127.0.0.1:") {
		t.Errorf("Addr() = %s, want loopback", srv.Addr())
	}

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Start returned %v after shutdown", err)
	}
}
