package push

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/mvaldes/chorebank/internal/model"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	if pub == "" {
		t.Error("expected non-empty public key")
	}
	if priv == "" {
		t.Error("expected non-empty private key")
	}

	// Public key should be base64url-encoded, 65 bytes uncompressed P-256 point
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	// Private key should be base64url-encoded, 32 bytes P-256 scalar
	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

func TestNilNotifierIsSafe(t *testing.T) {
	var n *Notifier
	// Push is optional; every event call must be a no-op without keys.
	task := &model.Task{ID: "t-1", Title: "Sweep"}
	n.TaskSubmitted(task)
	n.TaskSettled(task, &model.Child{ID: "c-1", Name: "Mia"})
	n.TaskRejected(task)
	n.Clarification(task, model.SenderParent)
}

func TestClarificationTitleFollowsSender(t *testing.T) {
	// A parent message is a question for the child; a child message is
	// the answer the parent is waiting on.
	got := clarificationTitle(model.SenderParent)
	if !strings.Contains(got, "Question") {
		t.Errorf("parent message title = %q, want a question", got)
	}
	got = clarificationTitle(model.SenderChild)
	if !strings.Contains(got, "Answer") {
		t.Errorf("child message title = %q, want an answer", got)
	}
}
