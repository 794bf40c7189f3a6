package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"

	"github.com/narvanalabs/inviteonly/internal/models"
)

// Built-in template names.
const (
	TemplateInvitation = "invitation_sent"
	TemplateReminder   = "invitation_reminder"
	TemplateCancelled  = "invitation_cancelled"
	TemplateAccepted   = "invitation_accepted"
)

// ExpiryDateLayout formats expiry dates in message bodies.
const ExpiryDateLayout = "January 2, 2006"

// Message is a rendered notification.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

// TemplateData is the data available to message templates.
type TemplateData struct {
	Email         string
	InvitableName string
	Role          string
	AcceptURL     string
	DeclineURL    string
	DashboardURL  string
	ExpiresOn     string
	ReminderCount int
}

type messageTemplate struct {
	subject *template.Template
	text    *template.Template
	html    *htmltemplate.Template
}

// Renderer turns notifications into messages.
type Renderer struct {
	baseURL   string
	templates map[string]*messageTemplate
}

// NewRenderer creates a renderer whose links point at baseURL.
func NewRenderer(baseURL string) *Renderer {
	r := &Renderer{
		baseURL:   strings.TrimRight(baseURL, "/"),
		templates: make(map[string]*messageTemplate),
	}
	for name, src := range builtinTemplates {
		r.mustRegister(name, src[0], src[1], src[2])
	}
	return r
}

// Register adds or replaces a named template.
func (r *Renderer) Register(name, subject, text, html string) error {
	subjectTmpl, err := template.New(name + ".subject").Parse(subject)
	if err != nil {
		return fmt.Errorf("parsing %s subject: %w", name, err)
	}
	textTmpl, err := template.New(name + ".text").Parse(text)
	if err != nil {
		return fmt.Errorf("parsing %s text: %w", name, err)
	}
	htmlTmpl, err := htmltemplate.New(name + ".html").Parse(html)
	if err != nil {
		return fmt.Errorf("parsing %s html: %w", name, err)
	}
	r.templates[name] = &messageTemplate{subject: subjectTmpl, text: textTmpl, html: htmlTmpl}
	return nil
}

func (r *Renderer) mustRegister(name, subject, text, html string) {
	if err := r.Register(name, subject, text, html); err != nil {
		panic(err)
	}
}

// Has reports whether a template is registered under name.
func (r *Renderer) Has(name string) bool {
	_, ok := r.templates[name]
	return ok
}

// AcceptURL returns the public accept link for a token.
func (r *Renderer) AcceptURL(token string) string {
	return r.baseURL + "/invitations/" + token + "/accept"
}

// DeclineURL returns the public decline link for a token.
func (r *Renderer) DeclineURL(token string) string {
	return r.baseURL + "/invitations/" + token + "/decline"
}

// Data builds the template data for an invitation.
func (r *Renderer) Data(inv *models.Invitation) TemplateData {
	data := TemplateData{
		Email:         inv.Email,
		InvitableName: inv.InvitableName(),
		Role:          inv.Role,
		AcceptURL:     r.AcceptURL(inv.Token),
		DeclineURL:    r.DeclineURL(inv.Token),
		DashboardURL:  r.baseURL + "/",
		ReminderCount: inv.ReminderCount,
	}
	if inv.ExpiresAt != nil {
		data.ExpiresOn = inv.ExpiresAt.Format(ExpiryDateLayout)
	}
	return data
}

// Render executes the named template for an invitation.
func (r *Renderer) Render(name string, inv *models.Invitation) (*Message, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown notification template %q", name)
	}

	data := r.Data(inv)
	var subject, text, html bytes.Buffer
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return nil, fmt.Errorf("rendering %s subject: %w", name, err)
	}
	if err := tmpl.text.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("rendering %s text: %w", name, err)
	}
	if err := tmpl.html.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("rendering %s html: %w", name, err)
	}

	return &Message{
		Subject: strings.TrimSpace(subject.String()),
		Text:    strings.TrimSpace(text.String()) + "\n",
		HTML:    strings.TrimSpace(html.String()),
	}, nil
}

// builtinTemplates holds subject, text and html sources per template name.
var builtinTemplates = map[string][3]string{
	TemplateInvitation: {
		`You've Been Invited!`,
		`Hello!

{{if .InvitableName}}You have been invited to join {{.InvitableName}}.{{else}}You have been invited to join us.{{end}}

Accept your invitation: {{.AcceptURL}}

If you did not expect this invitation, you can ignore this email.`,
		`<p>Hello!</p>
<p>{{if .InvitableName}}You have been invited to join {{.InvitableName}}.{{else}}You have been invited to join us.{{end}}</p>
<p><a href="{{.AcceptURL}}">Accept Invitation</a></p>
<p>If you did not expect this invitation, you can ignore this email.</p>`,
	},
	TemplateReminder: {
		`Reminder: Your Invitation is Waiting`,
		`Hello!

{{if .InvitableName}}Just a friendly reminder that you have a pending invitation to join {{.InvitableName}}.{{else}}Just a friendly reminder that you have a pending invitation waiting for you.{{end}}
{{if .ExpiresOn}}
This invitation will expire on {{.ExpiresOn}}.
{{end}}
Accept your invitation: {{.AcceptURL}}

If you are not interested, you can safely ignore this email.`,
		`<p>Hello!</p>
<p>{{if .InvitableName}}Just a friendly reminder that you have a pending invitation to join {{.InvitableName}}.{{else}}Just a friendly reminder that you have a pending invitation waiting for you.{{end}}</p>
{{if .ExpiresOn}}<p>This invitation will expire on {{.ExpiresOn}}.</p>{{end}}
<p><a href="{{.AcceptURL}}">Accept Invitation</a></p>
<p>If you are not interested, you can safely ignore this email.</p>`,
	},
	TemplateCancelled: {
		`Invitation Cancelled`,
		`Hello!

{{if .InvitableName}}Your invitation to join {{.InvitableName}} has been cancelled.{{else}}Your invitation has been cancelled.{{end}}

If you believe this was a mistake, please contact the person who sent you the invitation.`,
		`<p>Hello!</p>
<p>{{if .InvitableName}}Your invitation to join {{.InvitableName}} has been cancelled.{{else}}Your invitation has been cancelled.{{end}}</p>
<p>If you believe this was a mistake, please contact the person who sent you the invitation.</p>`,
	},
	TemplateAccepted: {
		`Invitation Accepted!`,
		`Good news!

{{if .InvitableName}}{{.Email}} has accepted your invitation to join {{.InvitableName}}.{{else}}{{.Email}} has accepted your invitation.{{end}}

They are now part of your team.

View dashboard: {{.DashboardURL}}`,
		`<p>Good news!</p>
<p>{{if .InvitableName}}{{.Email}} has accepted your invitation to join {{.InvitableName}}.{{else}}{{.Email}} has accepted your invitation.{{end}}</p>
<p>They are now part of your team.</p>
<p><a href="{{.DashboardURL}}">View Dashboard</a></p>`,
	},
}
