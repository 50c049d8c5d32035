package event

import (
	"encoding/json"
	"fmt"
	"strings"

	logx "fabrica/pkg/logx"
)

// githubBody covers the fields we care about across all GitHub event types.
// Everything is optional; missing fields degrade to a minimal activity.
type githubBody struct {
	Action     string `json:"action"`
	Repository *struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Sender *struct {
		Login string `json:"login"`
	} `json:"sender"`
	PullRequest *struct {
		Title  string `json:"title"`
		Merged bool   `json:"merged"`
		Number int    `json:"number"`
	} `json:"pull_request"`
	Issue *struct {
		Title  string `json:"title"`
		Number int    `json:"number"`
	} `json:"issue"`
	Release *struct {
		TagName string `json:"tag_name"`
		Name    string `json:"name"`
	} `json:"release"`
	Milestone *struct {
		Title string `json:"title"`
	} `json:"milestone"`
	Ref     string `json:"ref"`
	Commits []struct {
		Message string `json:"message"`
	} `json:"commits"`
}

func (c *Classifier) classifyGitHub(p WebhookPayload) (Event, error) {
	eventType := strings.ToLower(strings.TrimSpace(p.EventType))

	var kind Kind
	switch eventType {
	case "push":
		kind = KindPush
	case "pull_request":
		kind = KindPROpened // refined below once the body parses
	case "release":
		kind = KindRelease
	case "milestone":
		kind = KindMilestone
	case "issues":
		kind = KindIssueOpened
	case "issue_comment", "pull_request_review_comment", "commit_comment":
		kind = KindComment
	case "ping":
		return nil, fmt.Errorf("%w: ping", ErrIgnored)
	default:
		return nil, fmt.Errorf("%w: github %q", ErrUnrecognizedEvent, eventType)
	}

	act := ExternalActivity{
		ID:            c.eventID(p.DeliveryID),
		Source:        SourceGitHub,
		ProjectOrRepo: "unknown",
		Kind:          kind,
		Summary:       map[string]string{"event": eventType},
	}

	var body githubBody
	if err := json.Unmarshal(p.Body, &body); err != nil {
		// Recognized type, unreadable body: keep the minimal activity.
		c.log.Warn("github webhook body unreadable; degrading",
			logx.String("event", eventType), logx.Err(err))
		return act, nil
	}

	if body.Repository != nil && body.Repository.FullName != "" {
		act.ProjectOrRepo = body.Repository.FullName
	}
	if body.Sender != nil {
		act.Actor = body.Sender.Login
	}
	if body.Action != "" {
		act.Summary["action"] = body.Action
	}

	switch eventType {
	case "pull_request":
		if body.PullRequest != nil {
			act.Summary["title"] = body.PullRequest.Title
			act.Summary["number"] = fmt.Sprintf("%d", body.PullRequest.Number)
		}
		switch {
		case body.Action == "closed" && body.PullRequest != nil && body.PullRequest.Merged:
			act.Kind = KindPRMerged
		case body.Action == "closed":
			act.Kind = KindPRClosed
		case body.Action == "opened" || body.Action == "reopened":
			act.Kind = KindPROpened
		default:
			act.Kind = KindUnknown
		}
	case "issues":
		if body.Issue != nil {
			act.Summary["title"] = body.Issue.Title
			act.Summary["number"] = fmt.Sprintf("%d", body.Issue.Number)
		}
		switch body.Action {
		case "opened", "reopened":
			act.Kind = KindIssueOpened
		case "closed":
			act.Kind = KindIssueClosed
		default:
			act.Kind = KindIssueUpdated
		}
	case "push":
		act.Summary["ref"] = body.Ref
		act.Summary["commits"] = fmt.Sprintf("%d", len(body.Commits))
		if len(body.Commits) > 0 {
			act.Summary["head"] = firstLine(body.Commits[len(body.Commits)-1].Message)
		}
	case "release":
		if body.Release != nil {
			act.Summary["tag"] = body.Release.TagName
			if body.Release.Name != "" {
				act.Summary["title"] = body.Release.Name
			}
		}
	case "milestone":
		if body.Milestone != nil {
			act.Summary["title"] = body.Milestone.Title
		}
	}

	return act, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
