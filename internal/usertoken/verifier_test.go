package usertoken

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

type jwksFixture struct {
	mu     sync.Mutex
	active string
	keys   map[string]*rsa.PrivateKey
	server *httptest.Server
}

func newJWKSFixture(t *testing.T, kids ...string) *jwksFixture {
	t.Helper()
	f := &jwksFixture{keys: make(map[string]*rsa.PrivateKey)}
	for _, kid := range kids {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("generate key %s: %v", kid, err)
		}
		f.keys[kid] = key
	}
	f.active = kids[0]
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		kid := f.active
		f.mu.Unlock()
		pub := f.keys[kid].PublicKey
		w.Header().Set("Cache-Control", "public, max-age=300")
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}}})
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *jwksFixture) rotate(kid string) {
	f.mu.Lock()
	f.active = kid
	f.mu.Unlock()
}

func (f *jwksFixture) sign(t *testing.T, kid string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(f.keys[kid])
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validClaims(subject string) Claims {
	now := time.Now()
	return Claims{
		Email: subject + "@school.org",
		Name:  "Student " + subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "https://idp.example.com",
			Audience:  jwt.ClaimStrings{"esol"},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Second)),
		},
	}
}

func newTestVerifier(t *testing.T, f *jwksFixture) *Verifier {
	t.Helper()
	v, err := NewVerifier(context.Background(), Config{
		JWKSURL:  f.server.URL,
		Issuer:   "https://idp.example.com",
		Audience: "esol",
		Leeway:   5 * time.Second,
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

func TestNewVerifierRequiresJWKSURL(t *testing.T) {
	if _, err := NewVerifier(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing jwks url to fail")
	}
}

func TestVerifyIdentityReadsClaims(t *testing.T) {
	f := newJWKSFixture(t, "kid-1")
	v := newTestVerifier(t, f)

	claims := validClaims("user_1")
	claims.OrgID = "org_9"
	claims.OrgRole = "org:admin"
	id, err := v.VerifyIdentity(context.Background(), f.sign(t, "kid-1", claims))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.Subject != "user_1" || id.Email != "user_1@school.org" || id.Name != "Student user_1" {
		t.Fatalf("unexpected identity %+v", id)
	}
	if id.OrgID != "org_9" || id.OrgRole != "org:admin" {
		t.Fatalf("unexpected org claims %+v", id)
	}
}

func TestVerifyIdentityRefreshesOnUnknownKid(t *testing.T) {
	f := newJWKSFixture(t, "kid-1", "kid-2")
	v := newTestVerifier(t, f)

	if _, err := v.VerifyIdentity(context.Background(), f.sign(t, "kid-1", validClaims("a"))); err != nil {
		t.Fatalf("verify kid-1: %v", err)
	}
	f.rotate("kid-2")
	id, err := v.VerifyIdentity(context.Background(), f.sign(t, "kid-2", validClaims("b")))
	if err != nil || id.Subject != "b" {
		t.Fatalf("verify after rotation: id=%+v err=%v", id, err)
	}
}

func TestVerifyIdentityRejects(t *testing.T) {
	f := newJWKSFixture(t, "kid-1")
	v := newTestVerifier(t, f)

	expired := validClaims("a")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	futureIAT := validClaims("a")
	futureIAT.IssuedAt = jwt.NewNumericDate(time.Now().Add(2 * time.Minute))
	wrongAud := validClaims("a")
	wrongAud.Audience = jwt.ClaimStrings{"other"}
	noSubject := validClaims("")

	tests := map[string]string{
		"expired":      f.sign(t, "kid-1", expired),
		"future iat":   f.sign(t, "kid-1", futureIAT),
		"wrong aud":    f.sign(t, "kid-1", wrongAud),
		"no subject":   f.sign(t, "kid-1", noSubject),
		"garbage":      "not-a-jwt",
		"truncated":    f.sign(t, "kid-1", validClaims("a"))[:20],
	}
	for name, token := range tests {
		if _, err := v.VerifyIdentity(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestParseCacheMaxAge(t *testing.T) {
	if got := parseCacheMaxAge("public, max-age=60"); got != time.Minute {
		t.Fatalf("unexpected ttl %v", got)
	}
	if got := parseCacheMaxAge("no-store"); got != 0 {
		t.Fatalf("expected zero ttl, got %v", got)
	}
}
