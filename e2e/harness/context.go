// Package harness holds per-scenario state for the black-box suite: who the
// caller is, how to mint their token and what the last response was.
package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultBaseURL    = "http://localhost:8080"
	defaultSigningKey = "dev-secret-key-change-in-production"
	defaultIssuer     = "vouch"
)

type TestContext struct {
	BaseURL string
	Client  *http.Client

	signingKey []byte
	issuer     string

	UserID  string
	AdminID string

	LastStatus    int
	LastBody      []byte
	LastRequestID string
}

// New reads E2E_BASE_URL, JWT_SIGNING_KEY and JWT_ISSUER, matching the
// server's own variable names so one environment drives both.
func New() *TestContext {
	return &TestContext{
		BaseURL:    strings.TrimRight(envOr("E2E_BASE_URL", defaultBaseURL), "/"),
		Client:     &http.Client{Timeout: 10 * time.Second},
		signingKey: []byte(envOr("JWT_SIGNING_KEY", defaultSigningKey)),
		issuer:     envOr("JWT_ISSUER", defaultIssuer),
	}
}

// Reset gives the scenario fresh identities so scenarios never share
// pending requests or submission budgets.
func (tc *TestContext) Reset() {
	tc.UserID = uuid.NewString()
	tc.AdminID = uuid.NewString()
	tc.LastStatus = 0
	tc.LastBody = nil
	tc.LastRequestID = ""
}

func (tc *TestContext) UserToken() (string, error) {
	return tc.token(tc.UserID, "user")
}

func (tc *TestContext) AdminToken() (string, error) {
	return tc.token(tc.AdminID, "admin")
}

func (tc *TestContext) token(userID, role string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"sub":     userID,
		"iss":     tc.issuer,
		"iat":     now.Unix(),
		"exp":     now.Add(5 * time.Minute).Unix(),
		"jti":     uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tc.signingKey)
}

// Do sends the request and records status and body for later assertions.
func (tc *TestContext) Do(ctx context.Context, method, path, token, contentType string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, method, tc.BaseURL+path, body)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := tc.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.LastStatus = resp.StatusCode
	tc.LastBody, err = io.ReadAll(resp.Body)
	return err
}

// Field returns a top-level field of the last JSON body rendered as text.
func (tc *TestContext) Field(name string) (string, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.LastBody, &body); err != nil {
		return "", fmt.Errorf("response is not a JSON object: %w (body: %s)", err, tc.LastBody)
	}
	v, ok := body[name]
	if !ok {
		return "", fmt.Errorf("field %q missing from response: %s", name, tc.LastBody)
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprint(v), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
