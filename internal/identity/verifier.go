package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/armoryline/armoryline-backend/pkg/config"
	pkgerrors "github.com/armoryline/armoryline-backend/pkg/errors"
	"github.com/armoryline/armoryline-backend/pkg/logger"
)

var errBaseURLRequired = errors.New("identity verifier base url is required")

// Verifier is the boundary to the external identity service. OTP issuance,
// code storage and device history all live on the other side; this service
// only consumes verification outcomes.
type Verifier interface {
	IssueCode(ctx context.Context, email string) error
	VerifyCode(ctx context.Context, email, code string) (string, error)
	RecordDevice(ctx context.Context, subject, fingerprint, ip string) error
}

type httpVerifier struct {
	baseURL string
	client  *http.Client
}

// NewHTTPVerifier builds a Verifier talking to the configured identity
// service over its REST API.
func NewHTTPVerifier(ctx context.Context, cfg config.IdentityConfig, logg *logger.Logger) (Verifier, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logg != nil {
		logg.Info(ctx, "identity verifier client initialized")
	}
	return &httpVerifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type issueCodeRequest struct {
	Email string `json:"email"`
}

type verifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type verifyCodeResponse struct {
	Verified bool   `json:"verified"`
	Subject  string `json:"subject"`
}

type recordDeviceRequest struct {
	Subject     string `json:"subject"`
	Fingerprint string `json:"fingerprint"`
	IP          string `json:"ip"`
}

func (v *httpVerifier) IssueCode(ctx context.Context, email string) error {
	if email == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "email required")
	}
	return v.post(ctx, "/v1/otp/issue", issueCodeRequest{Email: email}, nil)
}

func (v *httpVerifier) VerifyCode(ctx context.Context, email, code string) (string, error) {
	if email == "" || code == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "email and code required")
	}
	var resp verifyCodeResponse
	if err := v.post(ctx, "/v1/otp/verify", verifyCodeRequest{Email: email, Code: code}, &resp); err != nil {
		return "", err
	}
	if !resp.Verified || resp.Subject == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "verification code rejected")
	}
	return resp.Subject, nil
}

func (v *httpVerifier) RecordDevice(ctx context.Context, subject, fingerprint, ip string) error {
	if subject == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subject required")
	}
	return v.post(ctx, "/v1/devices", recordDeviceRequest{Subject: subject, Fingerprint: fingerprint, IP: ip}, nil)
}

func (v *httpVerifier) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal identity request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build identity request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call identity service")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "identity service rejected the request")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("identity service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode identity response")
	}
	return nil
}
