package security

import (
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("unexpected hash encoding %q", hash)
	}
	ok, err := VerifyPassword(hash, "secret")
	if err != nil {
		t.Fatalf("verify password: %v", err)
	}
	if !ok {
		t.Fatalf("expected password to verify")
	}
	ok, err = VerifyPassword(hash, "wrong")
	if err != nil {
		t.Fatalf("verify wrong password: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch")
	}
}

func TestHashesAreSalted(t *testing.T) {
	a, err := HashPassword("same")
	if err != nil {
		t.Fatalf("hash a: %v", err)
	}
	b, err := HashPassword("same")
	if err != nil {
		t.Fatalf("hash b: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct salts to produce distinct hashes")
	}
}

func TestVerifyHonorsStoredParams(t *testing.T) {
	weak := Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 16, SaltLen: 8}
	hash, err := HashPasswordParams("secret", weak)
	if err != nil {
		t.Fatalf("hash with params: %v", err)
	}
	ok, err := VerifyPassword(hash, "secret")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected old-cost hash to still verify")
	}
}

func TestVerifyEmpty(t *testing.T) {
	ok, err := VerifyPassword("", "")
	if err != nil {
		t.Fatalf("verify empty: %v", err)
	}
	if !ok {
		t.Fatalf("expected empty passwords to match")
	}
}

func TestVerifyMalformed(t *testing.T) {
	for _, bad := range []string{"garbage", "$argon2id$v=19$m=0,t=0,p=0$x$y", "$md5$x"} {
		if _, err := VerifyPassword(bad, "secret"); err == nil {
			t.Errorf("expected error for malformed hash %q", bad)
		}
	}
}
