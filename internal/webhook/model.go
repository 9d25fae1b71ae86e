package webhook

import (
	"slices"
	"strings"
)

// Webhook is an outbound notification target.
type Webhook struct {
	Name   string
	URL    string
	Type   string
	Events []string
}

// Webhook types.
const (
	TypeGeneric = "generic"
	TypeDiscord = "discord"
	TypeSlack   = "slack"
	TypeGotify  = "gotify"
)

// Wants reports whether the webhook subscribes to eventType. An empty
// event list subscribes to everything.
func (w *Webhook) Wants(eventType string) bool {
	return len(w.Events) == 0 || slices.Contains(w.Events, eventType)
}

// Registry is the fixed set of configured webhooks.
type Registry struct {
	hooks []Webhook
}

// NewRegistry copies hooks into a Registry. Unknown types fall back to
// generic.
func NewRegistry(hooks []Webhook) *Registry {
	r := &Registry{hooks: make([]Webhook, 0, len(hooks))}
	for _, h := range hooks {
		h.Type = strings.ToLower(strings.TrimSpace(h.Type))
		switch h.Type {
		case TypeDiscord, TypeSlack, TypeGotify:
		default:
			h.Type = TypeGeneric
		}
		h.Events = slices.Clone(h.Events)
		r.hooks = append(r.hooks, h)
	}
	return r
}

// Len returns the number of webhooks.
func (r *Registry) Len() int { return len(r.hooks) }

// ListByEvent returns the webhooks subscribed to eventType.
func (r *Registry) ListByEvent(eventType string) []Webhook {
	var out []Webhook
	for i := range r.hooks {
		if r.hooks[i].Wants(eventType) {
			out = append(out, r.hooks[i])
		}
	}
	return out
}
