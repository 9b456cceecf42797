package sharetoken

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestSigner(secret string, now time.Time) *Signer {
	s := NewSigner(secret)
	s.now = func() time.Time { return now }
	return s
}

func TestMintAndParse(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	s := newTestSigner("0123456789abcdef0123456789abcdef", now)

	token, id, expires, err := s.Mint("cal-1", 48*time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("token id %q is not a uuid", id)
	}
	if !expires.Equal(now.Add(48 * time.Hour)) {
		t.Errorf("expires = %v", expires)
	}

	claims, err := s.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.CalendarID != "cal-1" || claims.ID != id {
		t.Errorf("claims = %+v", claims)
	}
}

func TestMintIssuesDistinctTokens(t *testing.T) {
	s := NewSigner("0123456789abcdef0123456789abcdef")
	a, idA, _, _ := s.Mint("cal-1", time.Hour)
	b, idB, _, _ := s.Mint("cal-1", time.Hour)
	if a == b || idA == idB {
		t.Error("expected a fresh token per mint")
	}
}

func TestParseRejects(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	s := newTestSigner("0123456789abcdef0123456789abcdef", now)
	token, _, _, err := s.Mint("cal-1", time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	testCases := []struct {
		name   string
		signer *Signer
		token  string
		want   error
	}{
		{name: "expired", signer: newTestSigner("0123456789abcdef0123456789abcdef", now.Add(2*time.Hour)), token: token, want: ErrTokenExpired},
		{name: "wrong secret", signer: newTestSigner("ffffffffffffffffffffffffffffffff", now), token: token, want: ErrTokenInvalid},
		{name: "garbage", signer: s, token: "not-a-token", want: ErrTokenInvalid},
		{name: "tampered", signer: s, token: token + "x", want: ErrTokenInvalid},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.signer.Parse(tc.token); !errors.Is(err, tc.want) {
				t.Errorf("Parse() error = %v, want %v", err, tc.want)
			}
		})
	}
}
