package crypto

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher_HashAndVerify(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	digest, err := h.Hash("pw")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if digest == "pw" || !strings.HasPrefix(digest, "$2") {
		t.Fatalf("Hash() = %q, want bcrypt digest", digest)
	}

	if !h.Verify("pw", digest) {
		t.Error("Verify() = false for correct password")
	}
	if h.Verify("wrong", digest) {
		t.Error("Verify() = true for wrong password")
	}
}

func TestBcryptHasher_SaltedDigests(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	a, _ := h.Hash("same")
	b, _ := h.Hash("same")
	if a == b {
		t.Error("two hashes of the same password should differ")
	}
}

func TestBcryptHasher_MalformedDigest(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	for _, digest := range []string{"", "not-a-digest", "$2a$04$short"} {
		if h.Verify("pw", digest) {
			t.Errorf("Verify(%q) = true, want false", digest)
		}
	}
}

func TestNewBcryptHasher_CostFallback(t *testing.T) {
	if got := NewBcryptHasher(0).cost; got != bcrypt.DefaultCost {
		t.Errorf("cost = %d, want %d", got, bcrypt.DefaultCost)
	}
	if got := NewBcryptHasher(99).cost; got != bcrypt.DefaultCost {
		t.Errorf("cost = %d, want %d", got, bcrypt.DefaultCost)
	}
}

func TestBcryptHasher_LongPassword(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	long := strings.Repeat("p", 80)

	digest, err := h.Hash(long)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !h.Verify(long, digest) {
		t.Error("Verify() = false for the hashed long password")
	}
	if !h.Verify(long[:maxPasswordBytes], digest) {
		t.Error("Verify() = false for the 72-byte prefix")
	}
	if h.Verify(long[:maxPasswordBytes-1], digest) {
		t.Error("Verify() = true for a shorter prefix")
	}
}
