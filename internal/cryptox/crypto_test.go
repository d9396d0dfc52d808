package cryptox

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveKey(password, salt)
	key2 := DeriveKey(password, salt)

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}

	expectedHex := "34f7a1c64df63ab1ad5b5ee06e64db5713b35f81839823304db63e8e5e6a6a39"
	if hex.EncodeToString(key1) != expectedHex {
		t.Errorf("expected %s, got %s", expectedHex, hex.EncodeToString(key1))
	}
}

func TestDeriveKey_DifferentInputs(t *testing.T) {
	password := []byte("secret-password")

	key1 := DeriveKey(password, []byte("salt-1"))
	key2 := DeriveKey(password, []byte("salt-2"))

	if bytes.Equal(key1, key2) {
		t.Errorf("expected different results for different salts, got same")
	}
}

func TestFingerprint(t *testing.T) {
	key := DeriveKey([]byte("pw"), []byte("salt"))
	if len(Fingerprint(key)) != 8 {
		t.Fatalf("expected 8-byte fingerprint, got %d", len(Fingerprint(key)))
	}
	if bytes.Equal(Fingerprint(key), Fingerprint(DeriveKey([]byte("other"), []byte("salt")))) {
		t.Errorf("different keys share a fingerprint")
	}
}

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewPassphraseSealer("correct horse", "boda-outbox")
	if err != nil {
		t.Fatalf("NewPassphraseSealer: %v", err)
	}

	plaintext := []byte(`{"name":["Ana"],"allergies":["gluten","lactose"]}`)

	sealed1, err := s.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sealed2, err := s.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Equal(sealed1, sealed2) {
		t.Errorf("expected distinct ciphertexts for repeated Seal")
	}
	if bytes.Contains(sealed1, []byte("gluten")) {
		t.Errorf("plaintext leaked into sealed data")
	}

	got, err := s.Open(sealed1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("expected %q, got %q", plaintext, got)
	}
}

func TestSealer_OpenFailures(t *testing.T) {
	s, err := NewPassphraseSealer("one", "salt")
	if err != nil {
		t.Fatalf("NewPassphraseSealer: %v", err)
	}
	other, err := NewPassphraseSealer("two", "salt")
	if err != nil {
		t.Fatalf("NewPassphraseSealer: %v", err)
	}

	sealed, err := s.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if _, err := other.Open(sealed); err == nil {
		t.Errorf("expected error opening with the wrong key")
	}

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff
	if _, err := s.Open(tampered); err == nil {
		t.Errorf("expected error opening tampered data")
	}

	if _, err := s.Open([]byte("short")); err != ErrShortCiphertext {
		t.Errorf("expected ErrShortCiphertext, got %v", err)
	}
}

func TestNewSealer_BadKey(t *testing.T) {
	if _, err := NewSealer([]byte("too-short")); err == nil {
		t.Errorf("expected error for invalid key length")
	}
}

func TestSealer_KeyID(t *testing.T) {
	a, err := NewPassphraseSealer("pw", "salt")
	if err != nil {
		t.Fatalf("NewPassphraseSealer: %v", err)
	}
	b, err := NewPassphraseSealer("pw", "salt")
	if err != nil {
		t.Fatalf("NewPassphraseSealer: %v", err)
	}
	c, err := NewPassphraseSealer("other", "salt")
	if err != nil {
		t.Fatalf("NewPassphraseSealer: %v", err)
	}

	if len(a.KeyID()) != 16 {
		t.Errorf("expected 16 hex chars, got %q", a.KeyID())
	}
	if a.KeyID() != b.KeyID() {
		t.Errorf("same passphrase gave different key ids")
	}
	if a.KeyID() == c.KeyID() {
		t.Errorf("different passphrases share a key id")
	}
}
