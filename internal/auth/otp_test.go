package auth

import (
	"strings"
	"testing"
)

func TestHashOTPBytes_consistency(t *testing.T) {
	identity, code, salt := "admin@x.com", "123456", "test-salt"
	h1 := hashOTPBytes(identity, code, salt)
	h2 := hashOTPBytes(identity, code, salt)
	if string(h1) != string(h2) {
		t.Errorf("hash should be deterministic")
	}
	if len(h1) != 32 {
		t.Errorf("SHA-256 hash should be 32 bytes, got %d", len(h1))
	}
}

func TestHashOTPBytes_differentInputsDifferentHash(t *testing.T) {
	salt := "salt"
	h1 := hashOTPBytes("admin@x.com", "123456", salt)
	h2 := hashOTPBytes("vendor@x.com", "123456", salt)
	h3 := hashOTPBytes("admin@x.com", "654321", salt)
	if string(h1) == string(h2) || string(h1) == string(h3) || string(h2) == string(h3) {
		t.Error("different inputs should produce different hashes")
	}
}

func TestConstantTimeCompare(t *testing.T) {
	a := []byte("same")
	b := []byte("same")
	if !constantTimeCompare(a, b) {
		t.Error("identical slices should compare equal")
	}
	b = []byte("diff")
	if constantTimeCompare(a, b) {
		t.Error("different slices should not compare equal")
	}
	if constantTimeCompare([]byte("a"), []byte("ab")) {
		t.Error("different length slices should not compare equal")
	}
	if constantTimeCompare(nil, []byte("x")) {
		t.Error("nil and non-nil should not compare equal")
	}
}

func TestGenerateOTPCode(t *testing.T) {
	for _, length := range []int{4, 6, 8} {
		code, err := generateOTPCode(length)
		if err != nil {
			t.Fatalf("generate code: %v", err)
		}
		if len(code) != length {
			t.Errorf("code length = %d, want %d", len(code), length)
		}
		for _, c := range code {
			if !strings.ContainsRune("0123456789", c) {
				t.Errorf("code %q contains non-digit %q", code, c)
			}
		}
	}
}

func TestMaskIdentity(t *testing.T) {
	cases := map[string]string{
		"admin@x.com": "ad***@x.com",
		"ab@x.com":    "***@x.com",
		"short":       "sh*rt",
		"abc":         "****",
	}
	for in, want := range cases {
		if got := MaskIdentity(in); got != want {
			t.Errorf("MaskIdentity(%q) = %q, want %q", in, got, want)
		}
	}
}
