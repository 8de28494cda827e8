package outbound

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Message is a rendered outbound notification.
type Message struct {
	Subject string
	Body    string
}

type messageTemplate struct {
	subject *template.Template
	body    *template.Template
}

var defaultTemplates = map[string][2]string{
	"sla_reminder": {
		`[L{{ .level }}] Work item #{{ .workItemId }} is still in progress`,
		`Work item #{{ .workItemId }} has been in progress for {{ .elapsedMinutes }} minutes.
{{- if .deadline }}
Deadline: {{ .deadline }} ({{ .remainingMinutes }} minutes remaining, {{ .slaStatus | lower }}){{ end }}`,
	},
	"escalation": {
		`Escalation: {{ .triggerType | replace "_" " " | lower | title }} on work item #{{ .workItemId }}`,
		`Work item #{{ .workItemId }} ({{ .status }}): {{ .reason }}.
{{- if .deadline }}
Deadline was {{ .deadline }}.{{ end }}`,
	},
	"escalation_volume_high": {
		`Escalation volume is high`,
		`{{ .count }} escalations in the last {{ .windowMinutes }} minutes (threshold {{ .threshold }}).`,
	},
}

// Renderer renders notification templates with sprig functions available.
type Renderer struct {
	templates map[string]messageTemplate
}

// NewRenderer parses the built-in templates.
func NewRenderer() (*Renderer, error) {
	return newRenderer(defaultTemplates)
}

func newRenderer(src map[string][2]string) (*Renderer, error) {
	r := &Renderer{templates: make(map[string]messageTemplate, len(src))}
	for key, parts := range src {
		subject, err := template.New(key + ".subject").Funcs(sprig.TxtFuncMap()).Parse(parts[0])
		if err != nil {
			return nil, fmt.Errorf("failed to parse subject template %s: %w", key, err)
		}
		body, err := template.New(key + ".body").Funcs(sprig.TxtFuncMap()).Parse(parts[1])
		if err != nil {
			return nil, fmt.Errorf("failed to parse body template %s: %w", key, err)
		}
		r.templates[key] = messageTemplate{subject: subject, body: body}
	}
	return r, nil
}

// Render executes the template registered under key.
func (r *Renderer) Render(key string, params map[string]any) (*Message, error) {
	t, ok := r.templates[key]
	if !ok {
		return nil, fmt.Errorf("unknown template %q", key)
	}
	var subject, body bytes.Buffer
	if err := t.subject.Execute(&subject, params); err != nil {
		return nil, fmt.Errorf("failed to render subject of %s: %w", key, err)
	}
	if err := t.body.Execute(&body, params); err != nil {
		return nil, fmt.Errorf("failed to render body of %s: %w", key, err)
	}
	return &Message{Subject: subject.String(), Body: body.String()}, nil
}
