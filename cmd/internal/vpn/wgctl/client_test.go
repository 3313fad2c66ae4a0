package wgctl

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

type daemonCall struct {
	path   string
	token  string
	pubkey string
	ips    string
}

func startFakeDaemon(t *testing.T, handler http.HandlerFunc) (string, *[]daemonCall) {
	t.Helper()

	sock := filepath.Join(t.TempDir(), "wgctl.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen unix: %v", err)
	}

	calls := &[]daemonCall{}
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload struct {
			Pubkey     string `json:"pubkey"`
			AllowedIPs string `json:"allowed_ips"`
		}
		_ = json.Unmarshal(body, &payload)
		*calls = append(*calls, daemonCall{
			path:   r.URL.Path,
			token:  r.Header.Get("X-WGCTL-Token"),
			pubkey: payload.Pubkey,
			ips:    payload.AllowedIPs,
		})
		handler(w, r)
	}))
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)

	return sock, calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAddPeerSendsTokenAndPayload(t *testing.T) {
	t.Parallel()

	sock, calls := startFakeDaemon(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"action": "added"})
	})

	c, err := NewClient(sock, "s3cret", testLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if err := c.AddPeer(context.Background(), "sess-1", "pubkey-abcdef0123456789", "10.0.0.5/32"); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}

	if len(*calls) != 1 {
		t.Fatalf("expected 1 daemon call, got %d", len(*calls))
	}
	got := (*calls)[0]
	if got.path != "/peer/add" {
		t.Fatalf("path = %s", got.path)
	}
	if got.token != "s3cret" {
		t.Fatalf("token = %q", got.token)
	}
	if got.pubkey != "pubkey-abcdef0123456789" || got.ips != "10.0.0.5/32" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestAddPeerFailsOnDaemonError(t *testing.T) {
	t.Parallel()

	sock, _ := startFakeDaemon(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	c, err := NewClient(sock, "t", testLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if err := c.AddPeer(context.Background(), "sess-1", "pk", "10.0.0.5/32"); err == nil {
		t.Fatal("expected error on daemon 500")
	}
}

func TestRemovePeerTreats404AsGone(t *testing.T) {
	t.Parallel()

	sock, calls := startFakeDaemon(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such peer", http.StatusNotFound)
	})

	c, err := NewClient(sock, "t", testLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if err := c.RemovePeer(context.Background(), "sess-1", "pk"); err != nil {
		t.Fatalf("RemovePeer on 404: %v", err)
	}
	if (*calls)[0].path != "/peer/remove" {
		t.Fatalf("path = %s", (*calls)[0].path)
	}
}

func TestRemovePeerFailsOnDaemonError(t *testing.T) {
	t.Parallel()

	sock, _ := startFakeDaemon(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	})

	c, err := NewClient(sock, "t", testLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if err := c.RemovePeer(context.Background(), "sess-1", "pk"); err == nil {
		t.Fatal("expected error on daemon 403")
	}
}

func TestAddPeerFailsWhenDaemonUnreachable(t *testing.T) {
	t.Parallel()

	c, err := NewClient(filepath.Join(t.TempDir(), "missing.sock"), "t", testLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if err := c.AddPeer(context.Background(), "sess-1", "pk", "10.0.0.5/32"); err == nil {
		t.Fatal("expected error when socket does not exist")
	}
}
