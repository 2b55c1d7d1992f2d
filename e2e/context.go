package e2e

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthorityActor is the actor name bound to the server's configured authority.
const AuthorityActor = "authority"

// Settings locate the server under test and the key it validates tokens with.
type Settings struct {
	BaseURL    string
	SigningKey string
	Issuer     string
	Audience   string
	Authority  string
}

// TestContext carries one scenario's actors and the last HTTP exchange.
type TestContext struct {
	settings Settings
	client   *http.Client

	actors   map[string]string
	lastUnit *uint64

	lastStatus  int
	lastBody    []byte
	lastHeaders http.Header
}

func NewTestContext(s Settings) *TestContext {
	return &TestContext{
		settings: s,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Reset clears per-scenario state. Actors get fresh addresses every scenario
// so scenarios can share one long-running server.
func (tc *TestContext) Reset() {
	tc.actors = map[string]string{AuthorityActor: tc.settings.Authority}
	tc.lastUnit = nil
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.lastHeaders = nil
}

// Address returns the actor's address, creating one on first use.
func (tc *TestContext) Address(actor string) string {
	if addr, ok := tc.actors[actor]; ok {
		return addr
	}
	var b [20]byte
	_, _ = rand.Read(b[:])
	addr := "0x" + hex.EncodeToString(b[:])
	tc.actors[actor] = addr
	return addr
}

func (tc *TestContext) token(actor string) (string, error) {
	now := time.Now()
	addr := tc.Address(actor)
	claims := jwt.MapClaims{
		"address": addr,
		"sub":     addr,
		"iss":     tc.settings.Issuer,
		"aud":     []string{tc.settings.Audience},
		"iat":     now.Unix(),
		"exp":     now.Add(10 * time.Minute).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(tc.settings.SigningKey))
}

// Request sends body as JSON. An empty actor sends the request anonymously.
func (tc *TestContext) Request(ctx context.Context, method, path, actor string, body any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(tc.settings.BaseURL, "/")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		tok, err := tc.token(actor)
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastHeaders = resp.Header
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) LastStatus() int { return tc.lastStatus }

func (tc *TestContext) LastBody() []byte { return tc.lastBody }

func (tc *TestContext) LastHeader(name string) string {
	if tc.lastHeaders == nil {
		return ""
	}
	return tc.lastHeaders.Get(name)
}

// ResponseField returns a top-level field of the last JSON body.
func (tc *TestContext) ResponseField(field string) (any, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %s", tc.lastBody)
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("field %q missing from %s", field, tc.lastBody)
	}
	return v, nil
}

func (tc *TestContext) SetLastUnit(id uint64) { tc.lastUnit = &id }

func (tc *TestContext) LastUnit() (uint64, error) {
	if tc.lastUnit == nil {
		return 0, fmt.Errorf("no unit has been minted in this scenario")
	}
	return *tc.lastUnit, nil
}
