package notification

import (
	"fmt"
	"strings"
	"sync"
)

// Built-in template ids.
const (
	TemplateShiftAssignment = "shift-assignment"
	TemplatePatientCritical = "patient-critical"
)

type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine renders {{key}} placeholders.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine starts with the shift-assignment and critical-patient
// templates.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	for _, t := range []Template{
		{
			ID:      TemplateShiftAssignment,
			Name:    "Shift Assignment",
			Subject: "New shift: {{area}} {{shift_type}} on {{date}}",
			Body:    "Hello {{employee_name}}, you have been rostered as {{role}} in {{area}} for the {{shift_type}} shift on {{date}}.",
		},
		{
			ID:      TemplatePatientCritical,
			Name:    "Patient Critical",
			Subject: "CRITICAL: {{patient_name}}",
			Body:    "Patient {{patient_name}} ({{patient_id}}) is now Critical. Triage level {{level}}: {{complaint}}.",
		},
	} {
		e.templates[t.ID] = &t
	}
	return e
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render substitutes data into the template. Placeholders without a value are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	pairs := make([]string, 0, 2*len(data))
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(t.Subject), r.Replace(t.Body), nil
}
