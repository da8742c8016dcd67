package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// AuthResult is the canonical authentication payload after adapting the
// gateway's variant field names.
type AuthResult struct {
	Token          string
	RefreshToken   string
	OrganizationID string
	// ExpiresIn is the token lifetime in seconds; 0 when the gateway
	// reported no expiry.
	ExpiresIn int64
}

// authPayload is the raw OTP-authenticate (and refresh) response. The
// gateway has shipped several shapes over time: token vs accessToken,
// expiresIn vs an absolute expireAt, organizationId at top level or nested
// under user.
type authPayload struct {
	Token          string          `json:"token"`
	AccessToken    string          `json:"accessToken"`
	RefreshToken   string          `json:"refreshToken"`
	ExpiresIn      int64           `json:"expiresIn"`
	ExpireAt       json.RawMessage `json:"expireAt"`
	OrganizationID string          `json:"organizationId"`
	User           struct {
		OrganizationID string `json:"organizationId"`
	} `json:"user"`
}

// adapt maps the raw payload onto AuthResult. The expireAt derivation
// subtracts local wall-clock time from a remote timestamp, so clock skew
// between us and the gateway shifts the result.
func (p *authPayload) adapt(now time.Time) AuthResult {
	res := AuthResult{
		Token:          p.Token,
		RefreshToken:   p.RefreshToken,
		OrganizationID: p.OrganizationID,
		ExpiresIn:      p.ExpiresIn,
	}
	if res.Token == "" {
		res.Token = p.AccessToken
	}
	if res.OrganizationID == "" {
		res.OrganizationID = p.User.OrganizationID
	}
	if res.ExpiresIn == 0 && len(p.ExpireAt) > 0 {
		if at, ok := parseExpireAt(p.ExpireAt); ok {
			if d := at.Sub(now); d > 0 {
				res.ExpiresIn = int64(d.Seconds())
			}
		}
	}
	return res
}

// parseExpireAt accepts either a unix-seconds number or an RFC 3339 string.
func parseExpireAt(raw json.RawMessage) (time.Time, bool) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if secs, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return time.Unix(secs, 0), true
		}
		if f, err := n.Float64(); err == nil {
			return time.Unix(int64(f), 0), true
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type otpRequestPayload struct {
	Email string `json:"email"`
}

type otpRequestResponse struct {
	Sid string `json:"sid"`
}

// RequestOTP asks the gateway to email a one-time passcode. The returned sid
// correlates the later authenticate call; it may be empty.
func (c *Client) RequestOTP(ctx context.Context, email string) (string, error) {
	var resp otpRequestResponse
	err := c.do(ctx, http.MethodPost, "/auth/email-otp/request", "", otpRequestPayload{Email: email}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Sid, nil
}

type otpAuthPayload struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
	Sid   string `json:"sid,omitempty"`
}

// AuthenticateOTP exchanges email+otp (and the sid when known) for a token.
func (c *Client) AuthenticateOTP(ctx context.Context, email, otp, sid string) (AuthResult, error) {
	var raw authPayload
	err := c.do(ctx, http.MethodPost, "/auth/email-otp/authenticate", "", otpAuthPayload{Email: email, OTP: otp, Sid: sid}, &raw)
	if err != nil {
		return AuthResult{}, err
	}
	return raw.adapt(time.Now()), nil
}

// Me fetches the authenticated profile.
func (c *Client) Me(ctx context.Context, token string) (Profile, error) {
	var p Profile
	err := c.do(ctx, http.MethodGet, "/auth/me", token, nil, &p)
	return p, err
}

type refreshPayload struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	var raw authPayload
	err := c.do(ctx, http.MethodPost, "/auth/refresh", "", refreshPayload{RefreshToken: refreshToken}, &raw)
	if err != nil {
		return AuthResult{}, err
	}
	return raw.adapt(time.Now()), nil
}

// KYCs lists the account's verification records.
func (c *Client) KYCs(ctx context.Context, token string) ([]KYC, error) {
	var out []KYC
	err := c.do(ctx, http.MethodGet, "/kycs", token, nil, &out)
	return out, err
}
