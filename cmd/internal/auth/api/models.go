package authapi

type authStartRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authStartResponse struct {
	ChallengeID        string `json:"challenge_id"`
	MFARequired        bool   `json:"mfa_required"`
	ChallengeExpiresIn int    `json:"challenge_expires_in"`
}

type verifyMFARequest struct {
	ChallengeID string `json:"challenge_id"`
	TOTPCode    string `json:"totp_code"`
}

type verifyMFAResponse struct {
	AccessToken     string `json:"access_token"`
	AccessExpiresIn int    `json:"access_expires_in"`
	ProofToken      string `json:"proof_token"`
	ProofExpiresIn  int    `json:"proof_expires_in"`
}

type stepUpStartResponse struct {
	ChallengeID        string `json:"challenge_id"`
	ChallengeExpiresIn int    `json:"challenge_expires_in"`
}

type stepUpVerifyResponse struct {
	ProofToken     string `json:"proof_token"`
	ProofExpiresIn int    `json:"proof_expires_in"`
}
