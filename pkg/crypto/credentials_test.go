package crypto

import (
	"encoding/base64"
	"strings"
	"testing"
)

const testKey = "dGVzdC1rZXktZm9yLXVuaXQtdGVzdHMtMzItYnl0ZXM=" // base64 of a 32-byte key

func TestNewCredentialEncryptorKeyForms(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"base64 32-byte key", testKey, false},
		{"passphrase", "my-simple-passphrase", false},
		{"base64 of wrong length falls back to passphrase", base64.StdEncoding.EncodeToString([]byte("short")), false},
		{"empty key", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewCredentialEncryptor(tt.key)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error for empty key")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if enc == nil {
				t.Fatal("expected non-nil encryptor")
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewCredentialEncryptor(testKey)
	if err != nil {
		t.Fatalf("failed to create encryptor: %v", err)
	}

	passwords := []string{
		"s3cr3t-db-password",
		"correct horse battery staple",
		"pässwörd-密码-🔑",
		"with\nnewlines\tand ; quotes ' \"",
		strings.Repeat("p", 200),
	}
	for _, pw := range passwords {
		sealed, err := enc.Encrypt(pw)
		if err != nil {
			t.Fatalf("Encrypt(%q) failed: %v", pw, err)
		}
		if sealed == pw {
			t.Errorf("ciphertext equals plaintext for %q", pw)
		}
		got, err := enc.Decrypt(sealed)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if got != pw {
			t.Errorf("round trip = %q, want %q", got, pw)
		}
	}
}

func TestEmptyPasswordPassesThrough(t *testing.T) {
	enc, _ := NewCredentialEncryptor(testKey)

	sealed, err := enc.Encrypt("")
	if err != nil || sealed != "" {
		t.Errorf("Encrypt(\"\") = (%q, %v), want empty passthrough", sealed, err)
	}
	plain, err := enc.Decrypt("")
	if err != nil || plain != "" {
		t.Errorf("Decrypt(\"\") = (%q, %v), want empty passthrough", plain, err)
	}
}

func TestSamePassphraseDecrypts(t *testing.T) {
	first, _ := NewCredentialEncryptor("shared-passphrase")
	second, _ := NewCredentialEncryptor("shared-passphrase")

	sealed, err := first.Encrypt("db-password")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	got, err := second.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt with same passphrase failed: %v", err)
	}
	if got != "db-password" {
		t.Errorf("decrypted = %q", got)
	}
}

func TestNoncesAreUnique(t *testing.T) {
	enc, _ := NewCredentialEncryptor(testKey)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		sealed, err := enc.Encrypt("same-plaintext")
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		if seen[sealed] {
			t.Fatal("duplicate ciphertext indicates nonce reuse")
		}
		seen[sealed] = true
	}
}

func TestDecryptFailures(t *testing.T) {
	enc, _ := NewCredentialEncryptor(testKey)
	other, _ := NewCredentialEncryptor("a-different-key")

	sealed, err := other.Encrypt("db-password")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	tests := []struct {
		name  string
		input string
	}{
		{"wrong key", sealed},
		{"invalid base64", "not-valid-base64!!!"},
		{"too short", base64.StdEncoding.EncodeToString([]byte("short"))},
		{"corrupted", base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 50)))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := enc.Decrypt(tt.input); err == nil {
				t.Error("expected decryption error")
			} else if !strings.Contains(err.Error(), "decryption failed") {
				t.Errorf("error = %v, want ErrDecryptionFailed wrapping", err)
			}
		})
	}
}
