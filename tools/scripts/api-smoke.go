// Package main provides a CI-friendly smoke test for the session service.
//
// It validates:
//   - password + TOTP login (challenge, verify-mfa, token issuance)
//   - proof-gated session create with IP allocation
//   - status and renew on the access/proof split
//   - tunnel config payload
//   - manual revoke and the terminal-state conflict
//
// The target user must exist; by default it drives the seeded demo
// account (WG_SEED_DEFAULT_USER=true).
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

func main() {
	var (
		baseURL   = flag.String("url", "http://127.0.0.1:8000", "Service base URL")
		username  = flag.String("user", "demo", "Username to log in with")
		password  = flag.String("password", "changeme", "Password")
		mfaSecret = flag.String("mfa-secret", "JBSWY3DPEHPK3PXP", "TOTP secret for the account")
		pubkey    = flag.String("pubkey", "", "Client WireGuard public key (default: generated placeholder)")
		timeout   = flag.Duration("timeout", 7*time.Second, "Per-request timeout")
		verbose   = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	key := *pubkey
	if key == "" {
		key = fmt.Sprintf("smoke-pubkey-%d", time.Now().UnixNano())
	}

	c := &client{
		base:    *baseURL,
		http:    &http.Client{Timeout: *timeout},
		verbose: *verbose,
	}

	// Login: challenge then TOTP verify.
	var start struct {
		ChallengeID string `json:"challenge_id"`
		MFARequired bool   `json:"mfa_required"`
	}
	c.call("POST", "/v1/auth/start", "", map[string]any{
		"username": *username,
		"password": *password,
	}, http.StatusOK, &start)
	if !start.MFARequired || start.ChallengeID == "" {
		fatalf("auth/start returned no challenge: %+v", start)
	}

	var tokens struct {
		AccessToken string `json:"access_token"`
		ProofToken  string `json:"proof_token"`
	}
	c.call("POST", "/v1/auth/verify-mfa", "", map[string]any{
		"challenge_id": start.ChallengeID,
		"totp_code":    mustTOTP(*mfaSecret),
	}, http.StatusOK, &tokens)
	c.logf("logged in as %s", *username)

	// Create, status, renew, config.
	var sess struct {
		SessionID        string `json:"session_id"`
		Status           string `json:"status"`
		RemainingSeconds int    `json:"remaining_seconds"`
	}
	c.call("POST", "/v1/sessions", tokens.ProofToken, map[string]any{
		"client_pubkey": key,
	}, http.StatusCreated, &sess)
	if sess.Status != "ACTIVE" {
		fatalf("created session is %s, want ACTIVE", sess.Status)
	}
	c.logf("session %s created, %ds remaining", sess.SessionID, sess.RemainingSeconds)

	c.call("GET", "/v1/sessions/"+sess.SessionID, tokens.AccessToken, nil, http.StatusOK, &sess)

	c.call("POST", "/v1/sessions/"+sess.SessionID+"/renew", tokens.ProofToken, nil, http.StatusOK, &sess)
	c.logf("renewed, %ds remaining", sess.RemainingSeconds)

	var cfg struct {
		Interface struct {
			Address string   `json:"address"`
			DNS     []string `json:"dns"`
		} `json:"interface"`
		Peer struct {
			PublicKey string `json:"public_key"`
			Endpoint  string `json:"endpoint"`
		} `json:"peer"`
	}
	c.call("POST", "/v1/sessions/"+sess.SessionID+"/config", tokens.ProofToken, nil, http.StatusOK, &cfg)
	if cfg.Interface.Address == "" || cfg.Peer.Endpoint == "" {
		fatalf("config payload incomplete: %+v", cfg)
	}
	c.logf("config: address=%s endpoint=%s", cfg.Interface.Address, cfg.Peer.Endpoint)

	// Revoke, then confirm the session is terminal.
	var revoked struct {
		Status    string    `json:"status"`
		RevokedAt time.Time `json:"revoked_at"`
	}
	c.call("POST", "/v1/sessions/"+sess.SessionID+"/revoke", tokens.AccessToken, nil, http.StatusOK, &revoked)
	if revoked.Status != "REVOKED" || revoked.RevokedAt.IsZero() {
		fatalf("unexpected revoke response: %+v", revoked)
	}
	c.call("POST", "/v1/sessions/"+sess.SessionID+"/revoke", tokens.AccessToken, nil, http.StatusConflict, nil)

	fmt.Println("smoke OK")
}

type client struct {
	base    string
	http    *http.Client
	verbose bool
}

// call performs one request and fails the run on any mismatch.
func (c *client) call(method, path, bearer string, body any, wantStatus int, dst any) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			fatalf("%s %s: encode: %v", method, path, err)
		}
	} else if method == http.MethodPost {
		buf.WriteString("{}")
	}

	req, err := http.NewRequest(method, c.base+path, &buf)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	if buf.Len() > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		fatalf("%s %s: read body: %v", method, path, err)
	}
	if resp.StatusCode != wantStatus {
		fatalf("%s %s: status %d, want %d (body %s)", method, path, resp.StatusCode, wantStatus, raw)
	}
	if dst != nil {
		if err := json.Unmarshal(raw, dst); err != nil {
			fatalf("%s %s: decode %s: %v", method, path, raw, err)
		}
	}
	if c.verbose {
		fmt.Printf("%s %s -> %d\n", method, path, resp.StatusCode)
	}
}

func (c *client) logf(format string, args ...any) {
	if c.verbose {
		fmt.Printf(format+"\n", args...)
	}
}

func mustTOTP(secret string) string {
	code, err := totp.GenerateCodeCustom(secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		fatalf("totp: %v", err)
	}
	return code
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "smoke FAIL: "+format+"\n", args...)
	os.Exit(1)
}
