package identity

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// totpOpts pins the RFC 6238 parameters: 30s step, 6 digits, SHA1, and a
// one-step skew window in each direction for clock drift.
var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// VerifyTOTP reports whether code is valid for secret at now. Any
// validation error (bad secret encoding included) counts as a mismatch.
func VerifyTOTP(code, secret string, now time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, now, totpOpts)
	return err == nil && ok
}
