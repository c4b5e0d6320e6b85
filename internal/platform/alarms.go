package platform

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// disconnectAlarmText is the human-readable text on disconnect alarms.
const disconnectAlarmText = "Websocket disconnect detected"

// alarmRepresentation is the wire form of an alarm, with its source object.
type alarmRepresentation struct {
	ID     string `json:"id,omitempty"`
	Type   string `json:"type"`
	Text   string `json:"text"`
	Time   string `json:"time,omitempty"`
	Source struct {
		ID string `json:"id"`
	} `json:"source"`
	Severity string `json:"severity"`
	Status   string `json:"status"`
}

type alarmPage struct {
	Alarms []alarmRepresentation `json:"alarms"`
}

// RaiseAlarm posts a CRITICAL, ACTIVE alarm of the given type against the
// source managed object. The alarm signal is fire-and-forget at the call
// sites; callers log the returned error and move on.
func (c *Client) RaiseAlarm(ctx context.Context, sourceID, alarmType string) error {
	alarm := alarmRepresentation{
		Type:     alarmType,
		Text:     disconnectAlarmText,
		Time:     time.Now().UTC().Format(time.RFC3339),
		Severity: SeverityCritical,
		Status:   StatusActive,
	}
	alarm.Source.ID = sourceID

	if err := c.do(ctx, "POST", "/alarm/alarms", nil, alarm, nil); err != nil {
		return fmt.Errorf("raising alarm %q: %w", alarmType, err)
	}
	return nil
}

// ClearAlarm transitions every ACTIVE alarm of the given type on the source
// to CLEARED. Zero matching alarms is a no-op.
func (c *Client) ClearAlarm(ctx context.Context, sourceID, alarmType string) error {
	query := url.Values{
		"source":   {sourceID},
		"type":     {alarmType},
		"status":   {StatusActive},
		"severity": {SeverityCritical},
	}

	var result alarmPage
	if err := c.do(ctx, "GET", "/alarm/alarms", query, nil, &result); err != nil {
		return fmt.Errorf("finding alarms of type %q: %w", alarmType, err)
	}

	for _, alarm := range result.Alarms {
		update := struct {
			Status string `json:"status"`
		}{Status: StatusCleared}

		path := "/alarm/alarms/" + url.PathEscape(alarm.ID)
		if err := c.do(ctx, "PUT", path, nil, update, nil); err != nil {
			return fmt.Errorf("clearing alarm %s: %w", alarm.ID, err)
		}
	}
	return nil
}
