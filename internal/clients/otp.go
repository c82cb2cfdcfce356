package clients

import (
	"context"
	"net/http"
	"time"
)

// Status messages the OTP service attaches to issuance replies. Reuse
// detection compares against these verbatim rather than sniffing substrings.
const (
	OTPStatusNew      = "New OTP generated successfully."
	OTPStatusExisting = "Existing unexpired OTP found. Reusing it."
	OTPStatusResend   = "Old OTP deleted and new OTP generated successfully."
)

// OTPIssue is the result of an issuance call: the 6-digit code and the
// status message describing how it was produced.
type OTPIssue struct {
	Code          string `json:"otpCode"`
	StatusMessage string `json:"statusMessage"`
}

// Reused reports whether the OTP service handed back an existing unexpired
// code instead of minting a new one.
func (o *OTPIssue) Reused() bool {
	return o.StatusMessage == OTPStatusExisting
}

// OTPClient talks to the OTP service, which owns code storage, expiry and
// consumption. Codes are scoped by (customer, tuition).
type OTPClient struct {
	serviceClient
}

func NewOTPClient(baseURL string, timeout time.Duration) *OTPClient {
	return &OTPClient{serviceClient: newServiceClient("otp", baseURL, timeout)}
}

type otpGenerateRequest struct {
	TuitionID int64 `json:"tuitionId"`
}

type otpValidateRequest struct {
	TuitionID int64  `json:"tuitionId"`
	OTPCode   string `json:"otpCode"`
}

// Generate requests a code without forcing re-issuance: an unexpired code for
// the same (customer, tuition) pair is returned unchanged.
func (c *OTPClient) Generate(ctx context.Context, customerID, tuitionID int64) (*OTPIssue, error) {
	var issue OTPIssue
	err := c.do(ctx, http.MethodPost, "/generate", customerID, otpGenerateRequest{TuitionID: tuitionID}, &issue)
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// Resend invalidates any existing code and mints a new one unconditionally.
func (c *OTPClient) Resend(ctx context.Context, customerID, tuitionID int64) (*OTPIssue, error) {
	var issue OTPIssue
	err := c.do(ctx, http.MethodPost, "/resend", customerID, otpGenerateRequest{TuitionID: tuitionID}, &issue)
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// Validate checks the submitted code. On success the OTP service consumes the
// code; a second validation with the same code fails.
func (c *OTPClient) Validate(ctx context.Context, customerID, tuitionID int64, otpCode string) error {
	return c.do(ctx, http.MethodPost, "/validate", customerID, otpValidateRequest{TuitionID: tuitionID, OTPCode: otpCode}, nil)
}
