package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/JackYouk/esol/internal/usertoken"
	"github.com/JackYouk/esol/pkg/extract"
	"github.com/JackYouk/esol/pkg/store"
	"github.com/JackYouk/esol/services/workspace/internal/app"
)

func TestJWKSVerifiedRequestCreatesUser(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "kid-1",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}})
	}))
	defer jwks.Close()

	verifier, err := usertoken.NewVerifier(context.Background(), usertoken.Config{JWKSURL: jwks.URL, Audience: "esol"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	memStore := store.NewMemoryStore()
	a, err := app.New(app.Config{
		Store:     memStore,
		Objects:   &memObjects{objects: make(map[string][]byte)},
		Extractor: &extract.PDFExtractor{Pdftotext: "-"},
		Tutor:     echoTutor{},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	s, err := New(Config{App: a, Verifier: verifier})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, usertoken.Claims{
		Email: "Lin@School.org",
		Name:  "Lin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "idp_lin",
			Audience:  jwt.ClaimStrings{"esol"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	})
	token.Header["kid"] = "kid-1"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	resp, out := doJSON(t, http.MethodGet, srv.URL+"/api/workspaces", signed, nil)
	if resp.StatusCode != http.StatusOK || out["count"] != float64(0) {
		t.Fatalf("expected empty list, got %d %v", resp.StatusCode, out)
	}
	user, ok, err := memStore.GetUserByID(context.Background(), "idp_lin")
	if err != nil || !ok {
		t.Fatalf("expected user created from token, ok=%v err=%v", ok, err)
	}
	if user.Email != "lin@school.org" || user.Name != "Lin" {
		t.Fatalf("unexpected user %+v", user)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/workspaces", signed[:len(signed)-4]+"AAAA", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("tampered token expected 401, got %d", resp.StatusCode)
	}
}

func TestNewRequiresApp(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected missing app to fail")
	}
}
