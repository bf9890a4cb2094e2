package backup

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"filippo.io/age"
)

func TestParseRecipients(t *testing.T) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}

	recs, err := ParseRecipients([]string{id.Recipient().String(), " ", ""})
	if err != nil {
		t.Fatalf("ParseRecipients failed: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("expected 1 recipient, got %d", len(recs))
	}

	if _, err := ParseRecipients([]string{"not-a-recipient"}); err == nil {
		t.Error("invalid recipient string should be rejected")
	}
}

func TestPassphraseDerivationIsDeterministic(t *testing.T) {
	first, err := IdentityFromPassphrase("correct horse battery staple")
	if err != nil {
		t.Fatalf("IdentityFromPassphrase failed: %v", err)
	}
	second, err := IdentityFromPassphrase("correct horse battery staple")
	if err != nil {
		t.Fatalf("IdentityFromPassphrase failed: %v", err)
	}
	if first.String() != second.String() {
		t.Error("same passphrase must derive the same identity")
	}

	other, err := IdentityFromPassphrase("a different passphrase")
	if err != nil {
		t.Fatalf("IdentityFromPassphrase failed: %v", err)
	}
	if first.String() == other.String() {
		t.Error("different passphrases must derive different identities")
	}
}

func TestPassphraseRecipientMatchesIdentity(t *testing.T) {
	id, err := IdentityFromPassphrase("a shared secret")
	if err != nil {
		t.Fatalf("IdentityFromPassphrase failed: %v", err)
	}
	rec, err := RecipientFromPassphrase("a shared secret")
	if err != nil {
		t.Fatalf("RecipientFromPassphrase failed: %v", err)
	}
	if rec.String() != id.Recipient().String() {
		t.Errorf("recipient %q does not match identity's recipient %q", rec, id.Recipient())
	}
}

func TestPassphraseEncryptDecryptRoundTrip(t *testing.T) {
	rec, err := RecipientFromPassphrase("round trip")
	if err != nil {
		t.Fatalf("RecipientFromPassphrase failed: %v", err)
	}
	id, err := IdentityFromPassphrase("round trip")
	if err != nil {
		t.Fatalf("IdentityFromPassphrase failed: %v", err)
	}

	var ciphertext bytes.Buffer
	w, err := age.Encrypt(&ciphertext, rec)
	if err != nil {
		t.Fatalf("age.Encrypt failed: %v", err)
	}
	if _, err := io.WriteString(w, "archive bytes"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := age.Decrypt(&ciphertext, id)
	if err != nil {
		t.Fatalf("age.Decrypt failed: %v", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(plain) != "archive bytes" {
		t.Error("round trip mismatch")
	}
}

func TestEmptyPassphraseRejected(t *testing.T) {
	if _, err := IdentityFromPassphrase(""); err == nil {
		t.Error("empty passphrase must be rejected")
	}
	if _, err := RecipientFromPassphrase(""); err == nil {
		t.Error("empty passphrase must be rejected")
	}
}

func TestDerivedIdentityHasAgeKeyShape(t *testing.T) {
	id, err := IdentityFromPassphrase("shape check")
	if err != nil {
		t.Fatalf("IdentityFromPassphrase failed: %v", err)
	}
	if !strings.HasPrefix(id.String(), "AGE-SECRET-KEY-1") {
		t.Errorf("unexpected secret key shape %q", id.String())
	}
	if !strings.HasPrefix(id.Recipient().String(), "age1") {
		t.Errorf("unexpected recipient shape %q", id.Recipient().String())
	}
}
