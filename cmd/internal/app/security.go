package app

import (
	"errors"
	"fmt"
)

// Placeholder values from LoadConfig that must never reach production.
const (
	defaultJWTSecret  = "change-me"
	defaultAdminToken = "admin-token-change-me"
	defaultWGCtlToken = "secret-token-change-me"

	minJWTSecretBytes = 32
)

// ValidateSecurityConfig enforces the secret policy at startup.
// Fail-fast is intentional: outside dev the service refuses to run on
// placeholder or undersized secrets instead of weakening silently.
func ValidateSecurityConfig(cfg Config) error {
	if cfg.Environment == "dev" {
		return nil
	}

	var errs []error
	if cfg.JWTSecretKey == defaultJWTSecret {
		errs = append(errs, errors.New("WG_JWT_SECRET_KEY is the placeholder default"))
	}
	// The key is used as raw bytes, so bytes are what we measure.
	if len(cfg.JWTSecretKey) < minJWTSecretBytes {
		errs = append(errs, fmt.Errorf("WG_JWT_SECRET_KEY is shorter than %d bytes", minJWTSecretBytes))
	}
	if cfg.AdminToken == defaultAdminToken {
		errs = append(errs, errors.New("WG_ADMIN_TOKEN is the placeholder default"))
	}
	if cfg.WGCtlToken == defaultWGCtlToken {
		errs = append(errs, errors.New("WG_WGCTL_TOKEN is the placeholder default"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("security policy (WG_ENVIRONMENT=%s): %w", cfg.Environment, errors.Join(errs...))
	}
	return nil
}
