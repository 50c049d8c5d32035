package event

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	logx "fabrica/pkg/logx"
)

var (
	// ErrIgnored signals "no route, no action needed". It is not a failure.
	ErrIgnored = errors.New("payload ignored")

	// ErrInvalidSignature is terminal: the payload is rejected before parsing.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrUnrecognizedEvent means the event type is unknown to us.
	// The sender is still acknowledged; no Event is produced.
	ErrUnrecognizedEvent = errors.New("unrecognized event type")
)

// DetectLanguage classifies free text into an ISO 639-1 code, or "" when
// inconclusive. It must be pure and deterministic.
type DetectLanguage func(text string) string

type Config struct {
	// GitHubSecret / PlaneSecret are the shared webhook secrets.
	// An empty secret disables that source entirely (all payloads rejected).
	GitHubSecret string
	PlaneSecret  string
}

// Classifier turns raw inbound payloads into typed Events.
type Classifier struct {
	cfg    Config
	detect DetectLanguage
	log    logx.Logger
}

func NewClassifier(cfg Config, detect DetectLanguage, log logx.Logger) *Classifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Classifier{cfg: cfg, detect: detect, log: log}
}

// ClassifyChat produces a ChatMessage, or ErrIgnored for payloads that need
// no routing (empty text, bot echoes, command invocations).
//
// The language snapshot is taken here so planning never re-detects.
func (c *Classifier) ClassifyChat(p ChatPayload) (Event, error) {
	if p.IsBotAuthor {
		return nil, fmt.Errorf("%w: bot author", ErrIgnored)
	}
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", ErrIgnored)
	}
	// Slash commands are handled by the command collaborator, not routed.
	if strings.HasPrefix(text, "/") {
		return nil, fmt.Errorf("%w: command invocation", ErrIgnored)
	}

	lang := ""
	if c.detect != nil {
		lang = c.detect(text)
	}

	return ChatMessage{
		ID:               uuid.NewString(),
		ChannelID:        p.ChannelID,
		AuthorID:         p.AuthorID,
		Text:             text,
		DetectedLanguage: lang,
	}, nil
}

// ClassifyWebhook validates the payload signature, then parses the body into
// an ExternalActivity. A recognized event type with an unreadable body degrades
// to a minimal activity rather than failing.
func (c *Classifier) ClassifyWebhook(p WebhookPayload) (Event, error) {
	switch p.Source {
	case SourceGitHub:
		if !verifyHMAC(c.cfg.GitHubSecret, p.Body, strings.TrimPrefix(p.Signature, "sha256=")) {
			return nil, ErrInvalidSignature
		}
		return c.classifyGitHub(p)
	case SourcePlane:
		if !verifyHMAC(c.cfg.PlaneSecret, p.Body, p.Signature) {
			return nil, ErrInvalidSignature
		}
		return c.classifyPlane(p)
	default:
		return nil, fmt.Errorf("%w: source %q", ErrUnrecognizedEvent, p.Source)
	}
}

// verifyHMAC compares an HMAC-SHA256 hex digest in constant time.
// An empty secret never verifies.
func verifyHMAC(secret string, body []byte, sigHex string) bool {
	if secret == "" || sigHex == "" {
		return false
	}
	want, err := hex.DecodeString(strings.TrimSpace(sigHex))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

func (c *Classifier) eventID(deliveryID string) string {
	if strings.TrimSpace(deliveryID) != "" {
		return deliveryID
	}
	return uuid.NewString()
}
