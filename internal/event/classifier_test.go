package event

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	logx "fabrica/pkg/logx"
)

func discardLogger() logx.Logger { return logx.Nop() }

const testSecret = "s3cret"

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestClassifier() *Classifier {
	return NewClassifier(Config{GitHubSecret: testSecret, PlaneSecret: testSecret},
		func(text string) string {
			if text == "नमस्ते" {
				return "hi"
			}
			return "en"
		}, discardLogger())
}

func TestClassifyChatIgnored(t *testing.T) {
	t.Parallel()
	c := newTestClassifier()

	cases := []struct {
		name string
		p    ChatPayload
	}{
		{"bot author", ChatPayload{AuthorID: "1", Text: "hello", IsBotAuthor: true}},
		{"empty text", ChatPayload{AuthorID: "1", Text: "   "}},
		{"command", ChatPayload{AuthorID: "1", Text: "/mode on"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := c.ClassifyChat(tc.p); !errors.Is(err, ErrIgnored) {
				t.Fatalf("expected ErrIgnored, got %v", err)
			}
		})
	}
}

func TestClassifyChatDetectsLanguage(t *testing.T) {
	t.Parallel()
	c := newTestClassifier()

	ev, err := c.ClassifyChat(ChatPayload{ChannelID: "c1", AuthorID: "u1", Text: "  नमस्ते  "})
	if err != nil {
		t.Fatalf("ClassifyChat: %v", err)
	}
	msg, ok := ev.(ChatMessage)
	if !ok {
		t.Fatalf("expected ChatMessage, got %T", ev)
	}
	if msg.Text != "नमस्ते" {
		t.Fatalf("text not trimmed: %q", msg.Text)
	}
	if msg.DetectedLanguage != "hi" {
		t.Fatalf("expected hi, got %q", msg.DetectedLanguage)
	}
	if msg.ID == "" {
		t.Fatal("expected non-empty event id")
	}
}

func TestClassifyWebhookSignature(t *testing.T) {
	t.Parallel()
	c := newTestClassifier()
	body := []byte(`{"action":"opened"}`)

	t.Run("valid github", func(t *testing.T) {
		_, err := c.ClassifyWebhook(WebhookPayload{
			Source:    SourceGitHub,
			EventType: "issues",
			Signature: "sha256=" + sign(testSecret, body),
			Body:      body,
		})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := c.ClassifyWebhook(WebhookPayload{
			Source:    SourceGitHub,
			EventType: "issues",
			Signature: "sha256=" + sign("wrong", body),
			Body:      body,
		})
		if !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature, got %v", err)
		}
	})

	t.Run("tampered body", func(t *testing.T) {
		_, err := c.ClassifyWebhook(WebhookPayload{
			Source:    SourceGitHub,
			EventType: "issues",
			Signature: "sha256=" + sign(testSecret, body),
			Body:      []byte(`{"action":"closed"}`),
		})
		if !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature, got %v", err)
		}
	})

	t.Run("empty secret never verifies", func(t *testing.T) {
		empty := NewClassifier(Config{}, nil, discardLogger())
		_, err := empty.ClassifyWebhook(WebhookPayload{
			Source:    SourceGitHub,
			EventType: "issues",
			Signature: "sha256=" + sign("", body),
			Body:      body,
		})
		if !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature, got %v", err)
		}
	})
}

func TestClassifyGitHubKinds(t *testing.T) {
	t.Parallel()
	c := newTestClassifier()

	cases := []struct {
		name      string
		eventType string
		body      string
		want      Kind
	}{
		{"merged pr", "pull_request", `{"action":"closed","pull_request":{"title":"t","merged":true,"number":7}}`, KindPRMerged},
		{"closed pr", "pull_request", `{"action":"closed","pull_request":{"title":"t","merged":false,"number":7}}`, KindPRClosed},
		{"opened pr", "pull_request", `{"action":"opened","pull_request":{"title":"t","number":7}}`, KindPROpened},
		{"release", "release", `{"release":{"tag_name":"v1.0.0"}}`, KindRelease},
		{"push", "push", `{"ref":"refs/heads/main","commits":[{"message":"fix"}]}`, KindPush},
		{"issue closed", "issues", `{"action":"closed","issue":{"title":"t","number":3}}`, KindIssueClosed},
		{"comment", "issue_comment", `{"action":"created"}`, KindComment},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := []byte(tc.body)
			ev, err := c.ClassifyWebhook(WebhookPayload{
				Source:    SourceGitHub,
				EventType: tc.eventType,
				Signature: "sha256=" + sign(testSecret, body),
				Body:      body,
			})
			if err != nil {
				t.Fatalf("ClassifyWebhook: %v", err)
			}
			act := ev.(ExternalActivity)
			if act.Kind != tc.want {
				t.Fatalf("expected kind %s, got %s", tc.want, act.Kind)
			}
		})
	}
}

func TestClassifyGitHubDegradesOnBadBody(t *testing.T) {
	t.Parallel()
	c := newTestClassifier()
	body := []byte(`{not json`)

	ev, err := c.ClassifyWebhook(WebhookPayload{
		Source:     SourceGitHub,
		EventType:  "push",
		Signature:  "sha256=" + sign(testSecret, body),
		DeliveryID: "gh-delivery-1",
		Body:       body,
	})
	if err != nil {
		t.Fatalf("expected degraded activity, got error %v", err)
	}
	act := ev.(ExternalActivity)
	if act.Kind != KindPush {
		t.Fatalf("expected push kind, got %s", act.Kind)
	}
	if act.ProjectOrRepo != "unknown" {
		t.Fatalf("expected unknown repo, got %q", act.ProjectOrRepo)
	}
	if act.ID != "gh-delivery-1" {
		t.Fatalf("expected delivery id reused, got %q", act.ID)
	}
}

func TestClassifyGitHubIgnoredAndUnrecognized(t *testing.T) {
	t.Parallel()
	c := newTestClassifier()
	body := []byte(`{}`)
	sig := "sha256=" + sign(testSecret, body)

	if _, err := c.ClassifyWebhook(WebhookPayload{Source: SourceGitHub, EventType: "ping", Signature: sig, Body: body}); !errors.Is(err, ErrIgnored) {
		t.Fatalf("ping: expected ErrIgnored, got %v", err)
	}
	if _, err := c.ClassifyWebhook(WebhookPayload{Source: SourceGitHub, EventType: "workflow_job", Signature: sig, Body: body}); !errors.Is(err, ErrUnrecognizedEvent) {
		t.Fatalf("workflow_job: expected ErrUnrecognizedEvent, got %v", err)
	}
}

func TestClassifyPlane(t *testing.T) {
	t.Parallel()
	c := newTestClassifier()
	body := []byte(`{
		"id": "pl-1",
		"event": "issue",
		"action": "created",
		"data": {"name": "Broken login", "priority": "urgent"},
		"activity": {"actor": {"display_name": "asha"}, "project": {"name": "palace"}}
	}`)

	ev, err := c.ClassifyWebhook(WebhookPayload{
		Source:    SourcePlane,
		Signature: sign(testSecret, body),
		Body:      body,
	})
	if err != nil {
		t.Fatalf("ClassifyWebhook: %v", err)
	}
	act := ev.(ExternalActivity)
	if act.Kind != KindIssueOpened {
		t.Fatalf("expected issue_opened, got %s", act.Kind)
	}
	if act.ID != "pl-1" {
		t.Fatalf("expected body id as event id, got %q", act.ID)
	}
	if act.ProjectOrRepo != "palace" || act.Actor != "asha" {
		t.Fatalf("unexpected project/actor: %q %q", act.ProjectOrRepo, act.Actor)
	}
	if act.Priority != 9 {
		t.Fatalf("expected urgent priority 9, got %d", act.Priority)
	}
}
