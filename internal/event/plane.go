package event

import (
	"encoding/json"
	"fmt"
	"strings"

	logx "fabrica/pkg/logx"
)

// planeBody is the subset of the Plane webhook envelope we consume.
type planeBody struct {
	ID     string `json:"id"`
	Event  string `json:"event"`  // "issue", "issue_comment", "cycle", ...
	Action string `json:"action"` // "created", "updated", "deleted"
	Data   *struct {
		Name     string `json:"name"`
		Priority string `json:"priority"`
	} `json:"data"`
	Activity *struct {
		Actor *struct {
			DisplayName string `json:"display_name"`
		} `json:"actor"`
		Project *struct {
			Name string `json:"name"`
		} `json:"project"`
	} `json:"activity"`
}

func (c *Classifier) classifyPlane(p WebhookPayload) (Event, error) {
	var body planeBody
	if err := json.Unmarshal(p.Body, &body); err != nil {
		// The envelope itself is unreadable. We cannot even tell the event type,
		// so degrade to the most minimal activity we can route.
		c.log.Warn("plane webhook body unreadable; degrading", logx.Err(err))
		return ExternalActivity{
			ID:            c.eventID(p.DeliveryID),
			Source:        SourcePlane,
			ProjectOrRepo: "unknown",
			Kind:          KindUnknown,
			Summary:       map[string]string{},
		}, nil
	}

	eventType := strings.ToLower(strings.TrimSpace(body.Event))
	if eventType == "" {
		eventType = strings.ToLower(strings.TrimSpace(p.EventType))
	}

	var kind Kind
	switch eventType {
	case "issue":
		switch body.Action {
		case "created":
			kind = KindIssueOpened
		case "deleted", "closed":
			kind = KindIssueClosed
		default:
			kind = KindIssueUpdated
		}
	case "issue_comment", "comment":
		kind = KindComment
	case "cycle", "module":
		kind = KindMilestone
	default:
		return nil, fmt.Errorf("%w: plane %q", ErrUnrecognizedEvent, eventType)
	}

	deliveryID := p.DeliveryID
	if deliveryID == "" {
		deliveryID = body.ID
	}

	act := ExternalActivity{
		ID:            c.eventID(deliveryID),
		Source:        SourcePlane,
		ProjectOrRepo: "unknown",
		Kind:          kind,
		Summary:       map[string]string{"event": eventType},
	}
	if body.Action != "" {
		act.Summary["action"] = body.Action
	}
	if body.Data != nil {
		if body.Data.Name != "" {
			act.Summary["title"] = body.Data.Name
		}
		switch strings.ToLower(body.Data.Priority) {
		case "urgent":
			act.Priority = 9
		case "high":
			act.Priority = 7
		}
	}
	if body.Activity != nil {
		if body.Activity.Project != nil && body.Activity.Project.Name != "" {
			act.ProjectOrRepo = body.Activity.Project.Name
		}
		if body.Activity.Actor != nil {
			act.Actor = body.Activity.Actor.DisplayName
		}
	}

	return act, nil
}
