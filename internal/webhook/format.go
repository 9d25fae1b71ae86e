package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sydlexius/camwatch/internal/event"
)

// Embed colors for chat targets.
const (
	colorOK      = 0x2ECC71
	colorWarning = 0xE67E22
	colorInfo    = 0x3498DB
)

type genericPayload struct {
	Event     event.Type     `json:"event"`
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Summary   string         `json:"summary"`
	Data      map[string]any `json:"data,omitempty"`
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

type slackPayload struct {
	Text string `json:"text"`
}

type gotifyPayload struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Priority int    `json:"priority"`
}

// formatPayload renders e for the target type. Every target receives JSON.
func formatPayload(w *Webhook, e event.Event) ([]byte, string) {
	title := "Camwatch: " + string(e.Type)
	summary := summarize(e)

	var v any
	switch w.Type {
	case TypeDiscord:
		v = discordPayload{Embeds: []discordEmbed{{
			Title:       title,
			Description: summary,
			Color:       severityColor(e.Type),
			Timestamp:   e.Timestamp.UTC().Format(time.RFC3339),
		}}}
	case TypeSlack:
		v = slackPayload{Text: "*" + title + "*\n" + summary}
	case TypeGotify:
		priority := 2
		if e.Type == event.ScanTimedOut {
			priority = 6
		}
		v = gotifyPayload{Title: title, Message: summary, Priority: priority}
	default:
		v = genericPayload{Event: e.Type, ID: e.ID, Timestamp: e.Timestamp, Summary: summary, Data: e.Data}
	}

	body, err := json.Marshal(v)
	if err != nil {
		// Data holds only scalars set by this service; fall back to the bare type.
		body = []byte(fmt.Sprintf(`{"event":%q}`, e.Type))
	}
	return body, "application/json"
}

func severityColor(t event.Type) int {
	switch t {
	case event.ScanTimedOut:
		return colorWarning
	case event.ScanCompleted:
		return colorOK
	default:
		return colorInfo
	}
}

// summarize builds a one-line human description of e.
func summarize(e event.Event) string {
	d := e.Data
	switch e.Type {
	case event.ScanCompleted:
		return fmt.Sprintf("scan finished: %v of %v cameras online", d["online"], d["probed"])
	case event.ScanTimedOut:
		return fmt.Sprintf("scan hit its deadline after probing %v of %v codes (%v online)",
			d["probed"], d["planned"], d["online"])
	case event.CameraUpdated:
		return fmt.Sprintf("camera %v updated by %v", d["code"], d["updated_by"])
	case event.MetadataReloaded:
		return fmt.Sprintf("camera metadata reloaded (%v records)", d["count"])
	}
	return string(e.Type)
}
