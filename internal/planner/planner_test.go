package planner

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"fabrica/internal/event"
	"fabrica/internal/routing"
	logx "fabrica/pkg/logx"
)

// fakeTranslator records calls and returns "<target>:<text>" or a canned error.
type fakeTranslator struct {
	mu    sync.Mutex
	calls int
	err   error
	// echo returns the input unchanged, simulating a misdetected message.
	echo bool
}

func (f *fakeTranslator) Translate(_ context.Context, text, _, target string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.echo {
		return text, nil
	}
	return target + ":" + text, nil
}

func newTestPlanner(tr *fakeTranslator) *Planner {
	return New(Config{}, tr, logx.Nop())
}

func chatMsg(lang string) event.ChatMessage {
	return event.ChatMessage{
		ID:               "ev-1",
		ChannelID:        "c1",
		AuthorID:         "author",
		Text:             "hello team",
		DetectedLanguage: lang,
	}
}

func snapshot(mode routing.Mode, subs ...routing.Subscription) routing.ChannelSnapshot {
	return routing.ChannelSnapshot{
		ChannelID:       "c1",
		Mode:            mode,
		DefaultLanguage: "en",
		Subscriptions:   subs,
		DebugUsers:      map[string]bool{},
	}
}

func TestModeOffProducesNoTargets(t *testing.T) {
	t.Parallel()
	tr := &fakeTranslator{}
	p := newTestPlanner(tr)

	plan := p.PlanChat(context.Background(), chatMsg("hi"), snapshot(routing.ModeOff,
		routing.Subscription{UserID: "u1", Language: "fr"}))
	if !plan.Empty() {
		t.Fatalf("expected empty plan, got %d targets", len(plan.Targets))
	}
	if tr.calls != 0 {
		t.Fatalf("expected no translation calls, got %d", tr.calls)
	}
}

func TestNonDefaultLanguageBroadcasts(t *testing.T) {
	t.Parallel()
	p := newTestPlanner(&fakeTranslator{})

	plan := p.PlanChat(context.Background(), chatMsg("hi"), snapshot(routing.ModeOn,
		routing.Subscription{UserID: "u1", Language: "fr"}))
	if len(plan.Targets) != 1 {
		t.Fatalf("expected 1 broadcast target, got %d", len(plan.Targets))
	}
	tgt := plan.Targets[0]
	if tgt.Kind != KindChannelBroadcast || tgt.Destination != "c1" {
		t.Fatalf("unexpected target: %+v", tgt)
	}
	if !strings.Contains(tgt.Payload, "en:hello team") {
		t.Fatalf("expected translated payload, got %q", tgt.Payload)
	}
	if !strings.Contains(tgt.Payload, "translated") {
		t.Fatalf("mode on should carry a translation indicator: %q", tgt.Payload)
	}
}

func TestSilentModeSuppressesIndicator(t *testing.T) {
	t.Parallel()
	p := newTestPlanner(&fakeTranslator{})

	plan := p.PlanChat(context.Background(), chatMsg("hi"), snapshot(routing.ModeSilent))
	if len(plan.Targets) != 1 {
		t.Fatalf("expected 1 target, got %d", len(plan.Targets))
	}
	if got := plan.Targets[0].Payload; got != "en:hello team" {
		t.Fatalf("silent mode should post bare translation, got %q", got)
	}
}

func TestTranslationFailureDegradesBroadcast(t *testing.T) {
	t.Parallel()
	p := newTestPlanner(&fakeTranslator{err: errors.New("backend down")})

	plan := p.PlanChat(context.Background(), chatMsg("hi"), snapshot(routing.ModeOn))
	if len(plan.Targets) != 1 {
		t.Fatalf("expected degraded broadcast, got %d targets", len(plan.Targets))
	}
	tgt := plan.Targets[0]
	if !tgt.Degraded {
		t.Fatal("expected Degraded flag")
	}
	if !strings.Contains(tgt.Payload, "hello team") || !strings.Contains(tgt.Payload, "untranslated") {
		t.Fatalf("expected original text with marker, got %q", tgt.Payload)
	}
}

func TestDefaultLanguageFansOutDMs(t *testing.T) {
	t.Parallel()
	tr := &fakeTranslator{}
	p := newTestPlanner(tr)

	plan := p.PlanChat(context.Background(), chatMsg("en"), snapshot(routing.ModeOn,
		routing.Subscription{UserID: "u1", Language: "hi"},
		routing.Subscription{UserID: "u2", Language: "fr"},
		routing.Subscription{UserID: "u3", Language: "en"}, // default lang, skipped
	))

	if len(plan.Targets) != 2 {
		t.Fatalf("expected 2 DM targets, got %d", len(plan.Targets))
	}
	for _, tgt := range plan.Targets {
		if tgt.Kind != KindDirectMessage {
			t.Fatalf("expected only DMs, got %+v", tgt)
		}
	}
	if tr.calls != 2 {
		t.Fatalf("expected one call per language, got %d", tr.calls)
	}
}

func TestSharedLanguageTranslatesOnce(t *testing.T) {
	t.Parallel()
	tr := &fakeTranslator{}
	p := newTestPlanner(tr)

	plan := p.PlanChat(context.Background(), chatMsg("en"), snapshot(routing.ModeOn,
		routing.Subscription{UserID: "u1", Language: "hi"},
		routing.Subscription{UserID: "u2", Language: "hi"},
		routing.Subscription{UserID: "u3", Language: "hi"},
	))
	if len(plan.Targets) != 3 {
		t.Fatalf("expected 3 DM targets, got %d", len(plan.Targets))
	}
	if tr.calls != 1 {
		t.Fatalf("expected a single backend call for a shared language, got %d", tr.calls)
	}
}

func TestAuthorSkippedUnlessDebug(t *testing.T) {
	t.Parallel()
	p := newTestPlanner(&fakeTranslator{})

	snap := snapshot(routing.ModeOn, routing.Subscription{UserID: "author", Language: "hi"})
	plan := p.PlanChat(context.Background(), chatMsg("en"), snap)
	if len(plan.Targets) != 0 {
		t.Fatalf("author should be skipped, got %d targets", len(plan.Targets))
	}

	snap.DebugUsers["author"] = true
	plan = p.PlanChat(context.Background(), chatMsg("en"), snap)
	if len(plan.Targets) != 1 || plan.Targets[0].Destination != "author" {
		t.Fatalf("debug author should receive own translation, got %+v", plan.Targets)
	}
}

func TestTransparentModeAddsNotice(t *testing.T) {
	t.Parallel()
	p := newTestPlanner(&fakeTranslator{})

	plan := p.PlanChat(context.Background(), chatMsg("en"), snapshot(routing.ModeTransparent,
		routing.Subscription{UserID: "u1", Language: "hi"}))
	var broadcasts, dms int
	for _, tgt := range plan.Targets {
		switch tgt.Kind {
		case KindChannelBroadcast:
			broadcasts++
		case KindDirectMessage:
			dms++
		}
	}
	if broadcasts != 1 || dms != 1 {
		t.Fatalf("expected 1 broadcast + 1 DM, got %d/%d", broadcasts, dms)
	}
}

func TestTransparentDetailListsLanguages(t *testing.T) {
	t.Parallel()
	p := New(Config{TransparentDetail: true}, &fakeTranslator{}, logx.Nop())

	plan := p.PlanChat(context.Background(), chatMsg("en"), snapshot(routing.ModeTransparent,
		routing.Subscription{UserID: "u1", Language: "hi"},
		routing.Subscription{UserID: "u2", Language: "fr"}))
	var notice string
	for _, tgt := range plan.Targets {
		if tgt.Kind == KindChannelBroadcast {
			notice = tgt.Payload
		}
	}
	if !strings.Contains(notice, "Hindi") || !strings.Contains(notice, "French") {
		t.Fatalf("expected language names in notice, got %q", notice)
	}
}

func TestSimilarityGuardDropsMisdetection(t *testing.T) {
	t.Parallel()
	p := newTestPlanner(&fakeTranslator{echo: true})

	plan := p.PlanChat(context.Background(), chatMsg("fr"), snapshot(routing.ModeOn))
	if !plan.Empty() {
		t.Fatalf("identical translation should be dropped, got %+v", plan.Targets)
	}
}

func TestPlanDeterminism(t *testing.T) {
	t.Parallel()
	p := newTestPlanner(&fakeTranslator{})
	snap := snapshot(routing.ModeOn,
		routing.Subscription{UserID: "u2", Language: "fr"},
		routing.Subscription{UserID: "u1", Language: "hi"},
		routing.Subscription{UserID: "u3", Language: "ko"},
	)

	first := p.PlanChat(context.Background(), chatMsg("en"), snap)
	for i := 0; i < 5; i++ {
		again := p.PlanChat(context.Background(), chatMsg("en"), snap)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("plan %d differs:\n%+v\nvs\n%+v", i, first, again)
		}
	}
}

func TestActivityLevelFiltering(t *testing.T) {
	t.Parallel()
	p := newTestPlanner(&fakeTranslator{})

	act := event.ExternalActivity{
		ID:            "act-1",
		Source:        event.SourceGitHub,
		ProjectOrRepo: "org/repo",
		Kind:          event.KindPRMerged,
		Actor:         "asha",
		Summary:       map[string]string{"title": "Fix login"},
	}

	levels := []struct {
		level   routing.WatchLevel
		kind    event.Kind
		deliver bool
	}{
		{routing.LevelMinimal, event.KindPRMerged, true},
		{routing.LevelImportant, event.KindPRMerged, true},
		{routing.LevelAll, event.KindPRMerged, true},
		{routing.LevelMinimal, event.KindComment, false},
		{routing.LevelImportant, event.KindComment, false},
		{routing.LevelAll, event.KindComment, true},
		{routing.LevelMinimal, event.KindPROpened, false},
		{routing.LevelImportant, event.KindPROpened, true},
	}
	for _, tc := range levels {
		t.Run(fmt.Sprintf("%s_%s", tc.kind, tc.level), func(t *testing.T) {
			a := act
			a.Kind = tc.kind
			snap := routing.ActivitySnapshot{Watches: []routing.Watch{
				{ChannelID: "c1", Source: event.SourceGitHub, Project: "org/repo", Level: tc.level},
			}}
			plan := p.PlanActivity(context.Background(), a, snap)
			if got := len(plan.Targets) == 1; got != tc.deliver {
				t.Fatalf("deliver=%v, expected %v", got, tc.deliver)
			}
		})
	}
}

func TestActivityOneBroadcastPerChannel(t *testing.T) {
	t.Parallel()
	p := newTestPlanner(&fakeTranslator{})

	act := event.ExternalActivity{
		ID:            "act-2",
		Source:        event.SourceGitHub,
		ProjectOrRepo: "org/repo",
		Kind:          event.KindRelease,
		Summary:       map[string]string{"tag": "v2.0.0"},
	}
	snap := routing.ActivitySnapshot{Watches: []routing.Watch{
		{ChannelID: "c1", Source: event.SourceGitHub, Project: "org/repo", Level: routing.LevelAll},
		{ChannelID: "c1", Source: event.SourceGitHub, Project: "org/repo", Level: routing.LevelMinimal},
		{ChannelID: "c2", Source: event.SourceGitHub, Project: "org/repo", Level: routing.LevelMinimal},
	}}
	plan := p.PlanActivity(context.Background(), act, snap)
	if len(plan.Targets) != 2 {
		t.Fatalf("expected one target per channel, got %d", len(plan.Targets))
	}
	if plan.Targets[0].Destination != "c1" || plan.Targets[1].Destination != "c2" {
		t.Fatalf("expected deterministic channel order, got %+v", plan.Targets)
	}
	for _, tgt := range plan.Targets {
		if !strings.Contains(tgt.Payload, "v2.0.0") {
			t.Fatalf("expected rendered tag, got %q", tgt.Payload)
		}
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()
	if s := similarity("hello", "hello"); s != 1 {
		t.Fatalf("identical strings: got %v", s)
	}
	if s := similarity("hello world", "completely different"); s > 0.5 {
		t.Fatalf("different strings should score low, got %v", s)
	}
	if s := similarity("", ""); s != 1 {
		t.Fatalf("empty strings: got %v", s)
	}
}
