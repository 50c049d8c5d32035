package event

// Source identifies the external system a webhook came from.
type Source string

const (
	SourceGitHub Source = "github"
	SourcePlane  Source = "plane"
)

// Kind classifies external activity for watch-level filtering.
type Kind string

const (
	KindPush         Kind = "push"
	KindPROpened     Kind = "pr_opened"
	KindPRMerged     Kind = "pr_merged"
	KindPRClosed     Kind = "pr_closed"
	KindRelease      Kind = "release"
	KindMilestone    Kind = "milestone"
	KindIssueOpened  Kind = "issue_opened"
	KindIssueUpdated Kind = "issue_updated"
	KindIssueClosed  Kind = "issue_closed"
	KindComment      Kind = "comment"
	KindUnknown      Kind = "unknown"
)

// Event is the classified form of an inbound payload.
//
// It is a closed union: ChatMessage or ExternalActivity.
// Values are immutable once returned by the classifier.
type Event interface {
	EventID() string
	sealed()
}

// ChatMessage is a human message in a channel that may need translation.
type ChatMessage struct {
	ID               string
	ChannelID        string
	AuthorID         string
	Text             string
	DetectedLanguage string // ISO 639-1 code, or "" when detection was inconclusive
}

func (m ChatMessage) EventID() string { return m.ID }
func (ChatMessage) sealed()           {}

// ExternalActivity is a tracker or source-control event from a webhook.
type ExternalActivity struct {
	ID            string
	Source        Source
	ProjectOrRepo string
	Kind          Kind
	Actor         string
	Priority      int
	Summary       map[string]string
}

func (a ExternalActivity) EventID() string { return a.ID }
func (ExternalActivity) sealed()           {}

// ChatPayload is the raw inbound chat event from the chat-platform collaborator.
type ChatPayload struct {
	ChannelID   string
	AuthorID    string
	Text        string
	IsBotAuthor bool
}

// WebhookPayload is the raw inbound HTTP webhook body plus transport metadata.
type WebhookPayload struct {
	Source    Source
	EventType string // e.g. X-GitHub-Event header value
	Signature string // signature header value, source-specific format
	// DeliveryID is the upstream redelivery identifier when the source provides one
	// (X-GitHub-Delivery, plane "id"). It keeps redeliveries idempotent downstream.
	DeliveryID string
	Body       []byte
}
