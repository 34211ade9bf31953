package servicetoken

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	issuer, err := NewIssuer("secret-1", "api", "worker", time.Minute)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	verifier, err := NewVerifier("secret-1", "worker", []string{"api"}, DefaultLeeway)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token, err := issuer.Issue()
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Issuer != "api" {
		t.Fatalf("issuer = %q, want api", claims.Issuer)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer, _ := NewIssuer("secret-1", "api", "worker", time.Minute)
	verifier, _ := NewVerifier("secret-2", "worker", nil, DefaultLeeway)

	token, err := issuer.Issue()
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.Verify(token); err == nil {
		t.Fatalf("expected verification failure for wrong secret")
	}
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	issuer, _ := NewIssuer("secret-1", "api", "worker", time.Minute)
	verifier, _ := NewVerifier("secret-1", "other", nil, DefaultLeeway)

	token, err := issuer.Issue()
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.Verify(token); err == nil {
		t.Fatalf("expected verification failure for wrong audience")
	}
}

func TestVerifyRejectsUnknownIssuer(t *testing.T) {
	issuer, _ := NewIssuer("secret-1", "stranger", "worker", time.Minute)
	verifier, _ := NewVerifier("secret-1", "worker", []string{"api"}, DefaultLeeway)

	token, err := issuer.Issue()
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.Verify(token); err == nil {
		t.Fatalf("expected verification failure for unknown issuer")
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := BearerToken(r); ok {
		t.Fatalf("expected no token on bare request")
	}
	r.Header.Set("Authorization", "Bearer abc")
	token, ok := BearerToken(r)
	if !ok || token != "abc" {
		t.Fatalf("BearerToken = %q, %v", token, ok)
	}
	r.Header.Set("Authorization", "Basic abc")
	if _, ok := BearerToken(r); ok {
		t.Fatalf("expected rejection of non-bearer scheme")
	}
}
