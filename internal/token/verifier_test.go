package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "test-secret-key"

func TestVerifyValidToken(t *testing.T) {
	signed, err := Generate(testSecret, "user-1", "ana@example.edu", []string{"reports:read"}, time.Hour)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	claims, err := NewVerifier(testSecret).Verify(signed)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if claims.SubjectID() != "user-1" {
		t.Errorf("subject = %q, want user-1", claims.SubjectID())
	}
	if claims.Email != "ana@example.edu" {
		t.Errorf("email = %q, want ana@example.edu", claims.Email)
	}
	if !claims.HasScope("reports:read") {
		t.Error("expected scope reports:read")
	}
	if claims.HasScope("payments:write") {
		t.Error("unexpected scope payments:write")
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	signed, err := Generate(testSecret, "user-1", "", nil, -time.Minute)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	_, err = NewVerifier(testSecret).Verify(signed)
	if !errors.Is(err, ErrExpired) {
		t.Errorf("err = %v, want ErrExpired", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	signed, err := Generate("other-secret", "user-1", "", nil, time.Hour)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	_, err = NewVerifier(testSecret).Verify(signed)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

func TestVerifyCorruptedSignature(t *testing.T) {
	signed, err := Generate(testSecret, "user-1", "", nil, time.Hour)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	corrupted := signed[:len(signed)-2] + "xx"
	if _, err := NewVerifier(testSecret).Verify(corrupted); !errors.Is(err, ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	if _, err := NewVerifier(testSecret).Verify("not-a-token"); !errors.Is(err, ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

func TestFromHeader(t *testing.T) {
	signed, err := Generate(testSecret, "user-1", "", nil, time.Hour)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	v := NewVerifier(testSecret)

	tests := []struct {
		name    string
		header  string
		wantErr error
	}{
		{"valid", "Bearer " + signed, nil},
		{"missing", "", ErrMissing},
		{"no bearer prefix", signed, ErrMalformed},
		{"wrong scheme", "Basic " + signed, ErrMalformed},
		{"empty token", "Bearer ", ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.FromHeader(tt.header)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("FromHeader(%q) failed: %v", tt.header, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("FromHeader(%q) err = %v, want %v", tt.header, err, tt.wantErr)
			}
		})
	}
}

func TestSubjectOf(t *testing.T) {
	signed, err := Generate(testSecret, "user-9", "", nil, time.Hour)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	v := NewVerifier(testSecret)

	if got := v.SubjectOf("Bearer " + signed); got != "user-9" {
		t.Errorf("SubjectOf(valid) = %q, want user-9", got)
	}
	if got := v.SubjectOf(""); got != "" {
		t.Errorf("SubjectOf(missing) = %q, want empty", got)
	}
	if got := v.SubjectOf("Bearer " + strings.Repeat("x", 20)); got != "" {
		t.Errorf("SubjectOf(garbage) = %q, want empty", got)
	}
}
