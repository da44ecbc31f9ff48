package security_test

import (
	"errors"
	"testing"

	"github.com/angelmondragon/campus-loyalty/pkg/config"
	"github.com/angelmondragon/campus-loyalty/pkg/security"
)

func TestHashAndVerifyPassword(t *testing.T) {
	cfg := config.PasswordConfig{
		ArgonMemoryKB:    32768,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}

	hash, err := security.HashPassword("Very-Secure-1", cfg)
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if hash == "" {
		t.Fatal("HashPassword returned empty string")
	}

	ok, err := security.VerifyPassword("Very-Secure-1", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error for valid hash: %v", err)
	}
	if !ok {
		t.Fatal("VerifyPassword failed for the correct password")
	}

	ok, err = security.VerifyPassword("bogus-password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error for invalid password: %v", err)
	}
	if ok {
		t.Fatal("VerifyPassword returned true for incorrect password")
	}
}

func TestVerifyPasswordBadHash(t *testing.T) {
	for _, encoded := range []string{
		"not-a-hash",
		"$argon2i$v=19$m=8,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5",
		"$argon2id$v=16$m=8,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=8,t=1,p=1$$a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=8,t=1,p=1$c2FsdHNhbHQ$!!",
	} {
		if _, err := security.VerifyPassword("irrelevant", encoded); !errors.Is(err, security.ErrInvalidHash) {
			t.Errorf("%q: expected ErrInvalidHash, got %v", encoded, err)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	cheap := config.PasswordConfig{ArgonMemoryKB: 8192, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}
	hash, err := security.HashPassword("Very-Secure-1", cheap)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if security.NeedsRehash(hash, cheap) {
		t.Fatal("hash made with current params should not need rehash")
	}

	stronger := cheap
	stronger.ArgonTime = 2
	if !security.NeedsRehash(hash, stronger) {
		t.Fatal("expected rehash after cost increase")
	}
	if !security.NeedsRehash("garbage", cheap) {
		t.Fatal("unparseable hash must be rehashed")
	}
}

func TestParamsFromConfigClamps(t *testing.T) {
	p := security.ParamsFromConfig(config.PasswordConfig{ArgonMemoryKB: 1, ArgonTime: 99, ArgonParallelism: 0, ArgonSaltLen: 1000, ArgonKeyLen: 0})
	want := security.ArgonParams{Memory: 8, Time: 10, Parallelism: 1, SaltLen: 64, KeyLen: 16}
	if p != want {
		t.Fatalf("got %+v want %+v", p, want)
	}
}

func TestValidatePasswordPolicy(t *testing.T) {
	tests := []struct {
		password string
		ok       bool
	}{
		{"Secret1!", true},
		{"Sh0rt!", false},
		{"alllowercase1!", false},
		{"ALLUPPERCASE1!", false},
		{"NoDigitsHere!", false},
		{"NoSpecial123", false},
		{"Way2Long!Way2Long!Way2", false},
	}
	for _, tt := range tests {
		err := security.ValidatePasswordPolicy(tt.password)
		if tt.ok && err != nil {
			t.Fatalf("expected %q to pass, got %v", tt.password, err)
		}
		if !tt.ok && err == nil {
			t.Fatalf("expected %q to fail policy", tt.password)
		}
	}
}

func TestNewResetTokenUnique(t *testing.T) {
	a, b := security.NewResetToken(), security.NewResetToken()
	if a == "" || a == b {
		t.Fatalf("expected distinct non-empty tokens, got %q and %q", a, b)
	}
}
