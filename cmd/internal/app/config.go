package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	ProjectName string
	Environment string

	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Security
	JWTSecretKey   string
	JWTAlgorithm   string
	AccessTokenTTL time.Duration
	ProofTokenTTL  time.Duration
	ChallengeTTL   time.Duration

	// Session control
	TTLMax                      time.Duration
	TTLStepDefault              time.Duration
	AllowMultipleActiveSessions bool

	// WireGuard network
	Interface     string
	Endpoint      string
	GatewayPubkey string
	AllowedIPs    []string
	DNS           string
	NetworkCIDR   string
	ReservedIPs   []string

	QuarantineDuration time.Duration

	// wgctl daemon
	WGCtlSocket string
	WGCtlToken  string

	AdminToken string

	SeedDefaultUser bool

	RevokerInterval  time.Duration
	ReleaserInterval time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		ProjectName: EnvString("WG_PROJECT_NAME", "wireguard-session-service"),
		Environment: EnvString("WG_ENVIRONMENT", "dev"),

		HTTPAddr: EnvString("WG_HTTP_ADDR", "0.0.0.0:8000"),
		LogLevel: EnvString("WG_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("WG_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("WG_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("WG_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("WG_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("WG_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("WG_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("WG_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("WG_DB_MIN_CONNS", 0),

		JWTSecretKey:   EnvString("WG_JWT_SECRET_KEY", "change-me"),
		JWTAlgorithm:   EnvString("WG_JWT_ALGORITHM", "HS256"),
		AccessTokenTTL: EnvSeconds("WG_ACCESS_TOKEN_EXPIRES_SECONDS", 900*time.Second),
		ProofTokenTTL:  EnvSeconds("WG_PROOF_TOKEN_EXPIRES_SECONDS", 60*time.Second),
		ChallengeTTL:   EnvSeconds("WG_CHALLENGE_EXPIRES_SECONDS", 120*time.Second),

		TTLMax:                      EnvSeconds("WG_TTL_MAX_SECONDS", 8*time.Hour),
		TTLStepDefault:              EnvSeconds("WG_TTL_STEP_DEFAULT_SECONDS", 15*time.Minute),
		AllowMultipleActiveSessions: EnvBool("WG_ALLOW_MULTIPLE_ACTIVE_SESSIONS", false),

		Interface:     EnvString("WG_INTERFACE", "wg0"),
		Endpoint:      EnvString("WG_ENDPOINT", "vpn.example.com:51820"),
		GatewayPubkey: EnvString("WG_GATEWAY_PUBKEY", "GATEWAY_PUBKEY_PLACEHOLDER"),
		AllowedIPs:    EnvStringSlice("WG_ALLOWED_IPS", nil),
		DNS:           EnvString("WG_DNS", "10.0.0.1"),
		NetworkCIDR:   EnvString("WG_NETWORK_CIDR", "10.0.0.0/24"),
		ReservedIPs:   EnvStringSlice("WG_RESERVED_IPS", nil),

		QuarantineDuration: EnvSeconds("WG_IP_QUARANTINE_DURATION_SECONDS", 180*time.Second),

		WGCtlSocket: EnvString("WG_WGCTL_SOCKET", "/run/wgctl/wgctl.sock"),
		WGCtlToken:  EnvString("WG_WGCTL_TOKEN", "secret-token-change-me"),

		AdminToken: EnvString("WG_ADMIN_TOKEN", "admin-token-change-me"),

		SeedDefaultUser: EnvBool("WG_SEED_DEFAULT_USER", false),

		RevokerInterval:  EnvSeconds("WG_REVOKER_INTERVAL_SECONDS", 30*time.Second),
		ReleaserInterval: EnvSeconds("WG_RELEASER_INTERVAL_SECONDS", 10*time.Second),
	}
}
