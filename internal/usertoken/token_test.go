package usertoken

import (
	"testing"
	"time"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	m, err := NewManager("top-secret", time.Hour)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.Issue(Claims{UserID: "user-1", IsStudent: true})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.UserID != "user-1" || !got.IsStudent || got.IsTeacher {
		t.Fatalf("unexpected claims: %+v", got)
	}
}

func TestVerifyRejectsForeignToken(t *testing.T) {
	a, _ := NewManager("secret-a", time.Hour)
	b, _ := NewManager("secret-b", time.Hour)

	token, err := a.Issue(Claims{UserID: "user-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.Verify(token); err == nil {
		t.Fatalf("expected rejection of token signed with another secret")
	}
}

func TestIssueRequiresUserID(t *testing.T) {
	m, _ := NewManager("top-secret", time.Hour)
	if _, err := m.Issue(Claims{}); err == nil {
		t.Fatalf("expected error for missing user id")
	}
}
