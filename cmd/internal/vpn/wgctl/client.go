// Package wgctl is the client for the wg-daemon that programs kernel
// WireGuard peers. The daemon listens on a local unix socket and speaks
// plain HTTP authenticated with a shared token header.
package wgctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	tokenHeader = "X-WGCTL-Token"

	// The host is a placeholder; the transport always dials the socket.
	baseURL = "http://wgctl"
)

// Client talks to one wg-daemon instance.
type Client struct {
	http  *http.Client
	token string
	log   *slog.Logger
}

// NewClient builds a client for the daemon socket. The returned client is
// long-lived and safe for concurrent use.
func NewClient(socketPath, token string, log *slog.Logger) (*Client, error) {
	if socketPath == "" {
		return nil, errors.New("wgctl: empty socket path")
	}
	if log == nil {
		return nil, errors.New("wgctl: nil logger")
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   5 * time.Second,
		},
		token: token,
		log:   log,
	}, nil
}

// AddPeer registers a client public key with its allowed IPs.
func (c *Client) AddPeer(ctx context.Context, sessionID, pubkey, allowedIPs string) error {
	c.log.Info("wgctl.add_peer", "session_id", sessionID, "allowed_ips", allowedIPs)

	status, body, err := c.post(ctx, "/peer/add", map[string]string{
		"pubkey":      pubkey,
		"allowed_ips": allowedIPs,
	})
	if err != nil {
		return fmt.Errorf("wgctl: add peer: %w", err)
	}
	if status < 200 || status > 299 {
		c.log.Error("wgctl.add_peer.fail", "session_id", sessionID, "status", status, "body", string(body))
		return fmt.Errorf("wgctl: add peer: daemon returned %d", status)
	}

	c.log.Info("wgctl.add_peer.ok", "session_id", sessionID, "action", daemonAction(body))
	return nil
}

// RemovePeer deletes a peer from the interface. A 404 from the daemon
// means the peer is already gone and counts as success.
func (c *Client) RemovePeer(ctx context.Context, sessionID, pubkey string) error {
	c.log.Info("wgctl.remove_peer", "session_id", sessionID)

	status, body, err := c.post(ctx, "/peer/remove", map[string]string{
		"pubkey": pubkey,
	})
	if err != nil {
		return fmt.Errorf("wgctl: remove peer: %w", err)
	}
	if status == http.StatusNotFound {
		c.log.Info("wgctl.remove_peer.already_gone", "session_id", sessionID)
		return nil
	}
	if status < 200 || status > 299 {
		c.log.Error("wgctl.remove_peer.fail", "session_id", sessionID, "status", status, "body", string(body))
		return fmt.Errorf("wgctl: remove peer: daemon returned %d", status)
	}

	c.log.Info("wgctl.remove_peer.ok", "session_id", sessionID, "action", daemonAction(body))
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload map[string]string) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(tokenHeader, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, body, nil
}

// daemonAction pulls the "action" field out of a daemon reply for logs.
func daemonAction(body []byte) string {
	var v struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return ""
	}
	return v.Action
}
