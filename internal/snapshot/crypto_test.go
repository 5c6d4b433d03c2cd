package snapshot

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("generate salt: %v", err)
	}
	if len(salt) != saltSize {
		t.Fatalf("salt length = %d, want %d", len(salt), saltSize)
	}

	plaintext := []byte("SQLite format 3\x00 pretend database contents")

	blob, err := Encrypt(plaintext, "household-passphrase", salt)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(blob, []byte("pretend database")) {
		t.Error("ciphertext leaks plaintext")
	}
	if !bytes.Equal(blob[:saltSize], salt) {
		t.Error("blob should start with the salt")
	}

	got, err := Decrypt(blob, "household-passphrase")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Error("round trip lost data")
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	salt, _ := GenerateSalt()
	blob, err := Encrypt([]byte("secret"), "right", salt)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if _, err := Decrypt(blob, "wrong"); err == nil {
		t.Error("decrypt with wrong passphrase should fail")
	}
}

func TestDecryptTruncatedBlob(t *testing.T) {
	if _, err := Decrypt([]byte("short"), "any"); err == nil {
		t.Error("decrypt of truncated blob should fail")
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt, _ := GenerateSalt()

	k1 := DeriveKey("pass", salt)
	k2 := DeriveKey("pass", salt)
	if !bytes.Equal(k1, k2) {
		t.Error("same passphrase and salt must derive the same key")
	}

	other, _ := GenerateSalt()
	if bytes.Equal(k1, DeriveKey("pass", other)) {
		t.Error("different salt must derive a different key")
	}
}
