package router

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"fabrica/internal/delivery"
	"fabrica/internal/event"
	"fabrica/internal/eventbus"
	"fabrica/internal/planner"
	"fabrica/internal/routing"
	"fabrica/internal/storage"
	logx "fabrica/pkg/logx"
)

const testSecret = "hook-secret"

type recordingMessenger struct {
	mu         sync.Mutex
	broadcasts []string
	dms        []string
}

func (m *recordingMessenger) PostToChannel(_ context.Context, channelID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts = append(m.broadcasts, channelID)
	return nil
}

func (m *recordingMessenger) SendDM(_ context.Context, userID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dms = append(m.dms, userID)
	return nil
}

type echoTranslator struct{}

func (echoTranslator) Translate(_ context.Context, text, _, target string) (string, error) {
	return target + ":" + text, nil
}

type fixture struct {
	router    *Router
	table     *routing.Table
	messenger *recordingMessenger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemory()
	table := routing.NewTable(routing.Config{DefaultLanguage: "en"}, store, logx.Nop())

	detect := func(text string) string {
		if text == "नमस्ते सभी" {
			return "hi"
		}
		return "en"
	}
	classifier := event.NewClassifier(event.Config{
		GitHubSecret: testSecret,
		PlaneSecret:  testSecret,
	}, detect, logx.Nop())

	pl := planner.New(planner.Config{}, echoTranslator{}, logx.Nop())
	m := &recordingMessenger{}
	eng := delivery.NewEngine(delivery.Config{
		RetryMax:  1,
		RetryBase: time.Millisecond,
	}, m, store, eventbus.New(), logx.Nop())

	r := New(Config{HandleTimeout: 5 * time.Second}, classifier, table, pl, eng, eventbus.New(), logx.Nop())
	return &fixture{router: r, table: table, messenger: m}
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHandleChatIgnoredPayloads(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	out := f.router.HandleChat(context.Background(), event.ChatPayload{
		ChannelID: "c1", AuthorID: "bot", Text: "hello", IsBotAuthor: true,
	})
	if _, ok := out.(Ignored); !ok {
		t.Fatalf("expected Ignored, got %T", out)
	}
}

func TestHandleChatDeliversTranslation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	if err := f.table.SetChannelMode(ctx, "c1", routing.ModeOn, "admin"); err != nil {
		t.Fatalf("SetChannelMode: %v", err)
	}

	out := f.router.HandleChat(ctx, event.ChatPayload{
		ChannelID: "c1", AuthorID: "u9", Text: "नमस्ते सभी",
	})
	del, ok := out.(Delivered)
	if !ok {
		t.Fatalf("expected Delivered, got %#v", out)
	}
	if len(del.Report.Attempts) != 1 || del.Report.Failed() != 0 {
		t.Fatalf("unexpected report: %+v", del.Report)
	}
	if len(f.messenger.broadcasts) != 1 || f.messenger.broadcasts[0] != "c1" {
		t.Fatalf("expected one broadcast to c1, got %+v", f.messenger.broadcasts)
	}
}

func TestHandleChatModeOffIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	out := f.router.HandleChat(context.Background(), event.ChatPayload{
		ChannelID: "c1", AuthorID: "u9", Text: "नमस्ते सभी",
	})
	if _, ok := out.(Ignored); !ok {
		t.Fatalf("expected Ignored for off channel, got %T", out)
	}
	if len(f.messenger.broadcasts)+len(f.messenger.dms) != 0 {
		t.Fatal("off channel must not deliver")
	}
}

func TestHandleWebhookInvalidSignatureRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	body := []byte(`{"action":"opened"}`)

	out := f.router.HandleWebhook(context.Background(), event.WebhookPayload{
		Source:    event.SourceGitHub,
		EventType: "issues",
		Signature: "sha256=deadbeef",
		Body:      body,
	})
	rej, ok := out.(Rejected)
	if !ok {
		t.Fatalf("expected Rejected, got %T", out)
	}
	if rej.Reason != "invalid signature" {
		t.Fatalf("unexpected reason %q", rej.Reason)
	}
}

func TestHandleWebhookDeliversToWatchers(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	if err := f.table.SetWatch(ctx, "c1", event.SourceGitHub, "org/repo", routing.LevelMinimal); err != nil {
		t.Fatalf("SetWatch: %v", err)
	}
	if err := f.table.SetWatch(ctx, "c2", event.SourceGitHub, "org/repo", routing.LevelAll); err != nil {
		t.Fatalf("SetWatch: %v", err)
	}

	body := []byte(`{"action":"closed","repository":{"full_name":"org/repo"},"pull_request":{"title":"Fix","merged":true,"number":1}}`)
	out := f.router.HandleWebhook(ctx, event.WebhookPayload{
		Source:     event.SourceGitHub,
		EventType:  "pull_request",
		Signature:  "sha256=" + sign(body),
		DeliveryID: "gh-1",
		Body:       body,
	})
	del, ok := out.(Delivered)
	if !ok {
		t.Fatalf("expected Delivered, got %#v", out)
	}
	if len(del.Report.Attempts) != 2 {
		t.Fatalf("expected 2 broadcasts, got %d", len(del.Report.Attempts))
	}
}

func TestHandleWebhookRedeliveryIsDuplicate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	_ = f.table.SetWatch(ctx, "c1", event.SourceGitHub, "org/repo", routing.LevelAll)

	body := []byte(`{"repository":{"full_name":"org/repo"},"release":{"tag_name":"v1"}}`)
	payload := event.WebhookPayload{
		Source:     event.SourceGitHub,
		EventType:  "release",
		Signature:  "sha256=" + sign(body),
		DeliveryID: "gh-dup",
		Body:       body,
	}

	f.router.HandleWebhook(ctx, payload)
	out := f.router.HandleWebhook(ctx, payload)
	del, ok := out.(Delivered)
	if !ok {
		t.Fatalf("expected Delivered, got %T", out)
	}
	if del.Report.Attempts[0].Status != delivery.StatusDuplicate {
		t.Fatalf("expected duplicate, got %s", del.Report.Attempts[0].Status)
	}
	if len(f.messenger.broadcasts) != 1 {
		t.Fatalf("redelivery must not resend, got %d broadcasts", len(f.messenger.broadcasts))
	}
}

func TestHandleWebhookUnrecognizedIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	body := []byte(`{}`)

	out := f.router.HandleWebhook(context.Background(), event.WebhookPayload{
		Source:    event.SourceGitHub,
		EventType: "workflow_run",
		Signature: "sha256=" + sign(body),
		Body:      body,
	})
	if _, ok := out.(Ignored); !ok {
		t.Fatalf("expected Ignored, got %T", out)
	}
}
