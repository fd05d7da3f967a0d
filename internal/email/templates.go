package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"

	"techcare/internal/money"
)

const (
	TemplateBookingCreated       = "booking_created"
	TemplateBidReceived          = "bid_received"
	TemplateBidAccepted          = "bid_accepted"
	TemplateBookingStatusChanged = "booking_status_changed"
	TemplatePaymentReceived      = "payment_received"
	TemplateReviewReceived       = "review_received"
	TemplateRewardRedeemed       = "reward_redeemed"
)

type templateSource struct {
	subject string
	body    string
}

var sources = map[string]templateSource{
	TemplateBookingCreated: {
		subject: "Your {{.device_type}} repair request is live",
		body: `<p>Hi {{.name}},</p>
<p>We received your repair request for your {{.device_type}}. Technicians can now send you bids.</p>
<p><a href="{{.link}}">View booking</a></p>`,
	},
	TemplateBidReceived: {
		subject: "New bid of {{money .amount .currency}} on your booking",
		body: `<p>Hi {{.name}},</p>
<p>A technician offered to repair your {{.device_type}} for <strong>{{money .amount .currency}}</strong>.</p>
<p><a href="{{.link}}">Review bids</a></p>`,
	},
	TemplateBidAccepted: {
		subject: "Your bid was accepted",
		body: `<p>Hi {{.name}},</p>
<p>Your bid of {{money .amount .currency}} for a {{.device_type}} repair was accepted.</p>
<p><a href="{{.link}}">Open job</a></p>`,
	},
	TemplateBookingStatusChanged: {
		subject: "Booking update: {{.status}}",
		body: `<p>Hi {{.name}},</p>
<p>Your {{.device_type}} booking is now <strong>{{.status}}</strong>.</p>
<p><a href="{{.link}}">View booking</a></p>`,
	},
	TemplatePaymentReceived: {
		subject: "Payment received: {{money .amount .currency}}",
		body: `<p>Hi {{.name}},</p>
<p>We received your payment of {{money .amount .currency}}. Thank you for using TechCare.</p>`,
	},
	TemplateReviewReceived: {
		subject: "You received a {{.rating}}-star review",
		body: `<p>Hi {{.name}},</p>
<p>A customer rated your work {{.rating}} out of 5.</p>
{{if .comment}}<blockquote>{{.comment}}</blockquote>{{end}}`,
	},
	TemplateRewardRedeemed: {
		subject: "Your reward: {{.reward_name}}",
		body: `<p>Hi {{.name}},</p>
<p>You redeemed <strong>{{.reward_name}}</strong>. Use code <code>{{.code}}</code> before {{.expires_at}}.</p>`,
	},
}

func formatMoney(amount any, currency any) string {
	var v float64
	switch a := amount.(type) {
	case float64:
		v = a
	case int:
		v = float64(a)
	case int64:
		v = float64(a)
	}
	code, _ := currency.(string)
	return money.Format(v, code)
}

type compiled struct {
	subject *template.Template
	body    *htmltemplate.Template
}

// Renderer turns template keys and data into subjects and HTML bodies.
type Renderer struct {
	templates map[string]compiled
}

func NewRenderer() (*Renderer, error) {
	funcs := map[string]any{"money": formatMoney}
	r := &Renderer{templates: make(map[string]compiled, len(sources))}
	for key, src := range sources {
		subject, err := template.New(key).Funcs(template.FuncMap(funcs)).Option("missingkey=zero").Parse(src.subject)
		if err != nil {
			return nil, fmt.Errorf("parse subject %s: %w", key, err)
		}
		body, err := htmltemplate.New(key).Funcs(htmltemplate.FuncMap(funcs)).Parse(src.body)
		if err != nil {
			return nil, fmt.Errorf("parse body %s: %w", key, err)
		}
		r.templates[key] = compiled{subject: subject, body: body}
	}
	return r, nil
}

// Render builds the message for template key addressed to recipient.
func (r *Renderer) Render(key, recipient string, data map[string]any) (Message, error) {
	tpl, ok := r.templates[key]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, key)
	}
	if data == nil {
		data = map[string]any{}
	}
	if _, ok := data["name"]; !ok {
		data["name"] = "there"
	}

	var subject, body bytes.Buffer
	if err := tpl.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("render subject %s: %w", key, err)
	}
	if err := tpl.body.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("render body %s: %w", key, err)
	}
	return Message{To: recipient, Subject: subject.String(), HTML: body.String(), Template: key}, nil
}
