package identity

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

const testSecret = "JBSWY3DPEHPK3PXP"

func codeAt(t *testing.T, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCode(testSecret, at)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	return code
}

func TestVerifyTOTPAcceptsCurrentCode(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 15, 0, time.UTC)
	if !VerifyTOTP(codeAt(t, now), testSecret, now) {
		t.Fatal("current code rejected")
	}
}

func TestVerifyTOTPSkewWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 15, 0, time.UTC)

	if !VerifyTOTP(codeAt(t, now.Add(-30*time.Second)), testSecret, now) {
		t.Fatal("previous-step code rejected")
	}
	if !VerifyTOTP(codeAt(t, now.Add(30*time.Second)), testSecret, now) {
		t.Fatal("next-step code rejected")
	}
	if VerifyTOTP(codeAt(t, now.Add(-90*time.Second)), testSecret, now) {
		t.Fatal("code from three steps back accepted")
	}
}

func TestVerifyTOTPRejectsGarbage(t *testing.T) {
	t.Parallel()

	now := time.Now()
	if VerifyTOTP("000000", testSecret, now) && VerifyTOTP("999999", testSecret, now) {
		t.Fatal("two arbitrary codes both accepted")
	}
	if VerifyTOTP("abcdef", testSecret, now) {
		t.Fatal("non-numeric code accepted")
	}
	if VerifyTOTP(codeAt(t, now), "not base32!!", now) {
		t.Fatal("invalid secret accepted")
	}
}
