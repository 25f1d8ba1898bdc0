package crypto

import (
	"strconv"
	"testing"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "correct horse battery staple") {
		t.Fatal("expected matching password to verify")
	}
	if CheckPassword(hash, "wrong password") {
		t.Fatal("expected mismatching password to fail")
	}
}

func TestNewToken(t *testing.T) {
	a, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	b, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a == b {
		t.Fatal("two tokens should not collide")
	}
}

func TestNewSessionVersion(t *testing.T) {
	sv, err := NewSessionVersion()
	if err != nil {
		t.Fatalf("NewSessionVersion: %v", err)
	}
	if len(sv) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(sv))
	}
}

func TestNewOTPRange(t *testing.T) {
	for i := 0; i < 50; i++ {
		otp, err := NewOTP()
		if err != nil {
			t.Fatalf("NewOTP: %v", err)
		}
		if len(otp) != 6 {
			t.Fatalf("expected 6 digits, got %q", otp)
		}
		n, err := strconv.Atoi(otp)
		if err != nil {
			t.Fatalf("OTP not numeric: %q", otp)
		}
		if n < 100000 || n > 999999 {
			t.Fatalf("OTP out of range: %d", n)
		}
	}
}
