package vpnapi

import (
	"time"

	"wgsd/cmd/internal/audit"
	"wgsd/cmd/internal/vpn/session"
)

// Every peer is programmed with the same keepalive so NAT mappings on
// client networks stay open.
const persistentKeepaliveSeconds = 25

type createSessionRequest struct {
	ClientPubkey string `json:"client_pubkey"`

	// A nil step means the configured default; an explicit zero is
	// rejected.
	TTLStepSeconds *int `json:"ttl_step_seconds"`
}

type sessionResponse struct {
	SessionID        string    `json:"session_id"`
	Status           string    `json:"status"`
	StartedAt        time.Time `json:"started_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	MaxExpiresAt     time.Time `json:"max_expires_at"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

func toSessionResponse(s session.Session, now time.Time) sessionResponse {
	return sessionResponse{
		SessionID:        s.ID,
		Status:           string(s.Status),
		StartedAt:        s.StartedAt,
		ExpiresAt:        s.ExpiresAt,
		MaxExpiresAt:     s.MaxExpiresAt,
		RemainingSeconds: s.Remaining(now),
	}
}

type configInterface struct {
	Address string   `json:"address"`
	DNS     []string `json:"dns"`
}

type revokeResponse struct {
	Status    string    `json:"status"`
	RevokedAt time.Time `json:"revoked_at"`
}

type configPeer struct {
	PublicKey           string   `json:"public_key"`
	Endpoint            string   `json:"endpoint"`
	AllowedIPs          []string `json:"allowed_ips"`
	PersistentKeepalive int      `json:"persistent_keepalive"`
}

type configResponse struct {
	Interface configInterface `json:"interface"`
	Peer      configPeer      `json:"peer"`
}

func toConfigResponse(c session.ConfigData) configResponse {
	return configResponse{
		Interface: configInterface{Address: c.Address, DNS: c.DNS},
		Peer: configPeer{
			PublicKey:           c.GatewayPubkey,
			Endpoint:            c.Endpoint,
			AllowedIPs:          c.AllowedIPs,
			PersistentKeepalive: persistentKeepaliveSeconds,
		},
	}
}

type adminSessionResponse struct {
	SessionID        string    `json:"session_id"`
	UserID           int64     `json:"user_id"`
	Status           string    `json:"status"`
	StartedAt        time.Time `json:"started_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	MaxExpiresAt     time.Time `json:"max_expires_at"`
	ClientPubkey     string    `json:"client_pubkey"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

func toAdminSessionResponse(s session.Session, now time.Time) adminSessionResponse {
	return adminSessionResponse{
		SessionID:        s.ID,
		UserID:           s.UserID,
		Status:           string(s.Status),
		StartedAt:        s.StartedAt,
		ExpiresAt:        s.ExpiresAt,
		MaxExpiresAt:     s.MaxExpiresAt,
		ClientPubkey:     s.ClientPubkey,
		RemainingSeconds: s.Remaining(now),
	}
}

type adminSessionsResponse struct {
	Sessions []adminSessionResponse `json:"sessions"`
}

type auditEntryResponse struct {
	ID         int64     `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	UserID     *int64    `json:"user_id"`
	SessionID  *string   `json:"session_id"`
	Action     string    `json:"action"`
	Detail     *string   `json:"detail"`
}

type auditLogResponse struct {
	Entries []auditEntryResponse `json:"entries"`
}

func toAuditLogResponse(entries []audit.Entry) auditLogResponse {
	out := auditLogResponse{Entries: make([]auditEntryResponse, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, auditEntryResponse{
			ID:         e.ID,
			OccurredAt: e.OccurredAt,
			UserID:     e.UserID,
			SessionID:  e.SessionID,
			Action:     e.Action,
			Detail:     e.Detail,
		})
	}
	return out
}
