package mailer

import (
	"bytes"
	htmltemplate "html/template"
	"sort"
	texttemplate "text/template"

	apperrors "tradelens/internal/errors"
)

// Template names understood by the queue.
const (
	TemplateWelcome              = "welcome"
	TemplatePaymentSuccess       = "payment_success"
	TemplateSubscriptionExpiring = "subscription_expiring"
	TemplateSubscriptionExpired  = "subscription_expired"
	TemplateTradeClosedDigest    = "trade_closed_digest"
)

const layout = `{{define "layout"}}<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, Helvetica, Arial, sans-serif; color: #1f2933; max-width: 560px; margin: 0 auto;">
<h2 style="color: #0b7285;">TradeLens</h2>
{{template "content" .}}
<p style="color: #7b8794; font-size: 12px; margin-top: 32px;">You are receiving this email because you have a TradeLens account.</p>
</body>
</html>{{end}}`

type emailTemplate struct {
	subject *texttemplate.Template
	body    *htmltemplate.Template
}

var registry = map[string]emailTemplate{}

func register(name, subject, content string) {
	registry[name] = emailTemplate{
		subject: texttemplate.Must(texttemplate.New(name).Option("missingkey=zero").Parse(subject)),
		body: htmltemplate.Must(htmltemplate.Must(
			htmltemplate.New(name).Option("missingkey=zero").Parse(layout)).
			Parse(`{{define "content"}}` + content + `{{end}}`)),
	}
}

func init() {
	register(TemplateWelcome,
		`Welcome to TradeLens{{if .name}}, {{.name}}{{end}}`,
		`<p>Hi {{if .name}}{{.name}}{{else}}there{{end}},</p>
<p>Your journal is ready. Log your first trade and TradeLens will track partial exits, P&amp;L and R multiples for you.</p>
{{if .trial_end}}<p>Your free trial runs until <strong>{{.trial_end}}</strong>.</p>{{end}}`)

	register(TemplatePaymentSuccess,
		`Payment received: {{.plan}}`,
		`<p>Hi {{if .name}}{{.name}}{{else}}there{{end}},</p>
<p>We received your payment of <strong>{{.amount}}</strong> for <strong>{{.plan}}</strong>.</p>
<p>Your subscription is active until <strong>{{.period_end}}</strong>.</p>`)

	register(TemplateSubscriptionExpiring,
		`Your TradeLens subscription ends in {{.days_left}} days`,
		`<p>Hi {{if .name}}{{.name}}{{else}}there{{end}},</p>
<p>Your <strong>{{.plan}}</strong> access ends on <strong>{{.period_end}}</strong>.</p>
<p>Renew to keep analytics breakdowns and CSV export.</p>`)

	register(TemplateSubscriptionExpired,
		`Your TradeLens subscription has ended`,
		`<p>Hi {{if .name}}{{.name}}{{else}}there{{end}},</p>
<p>Your <strong>{{.plan}}</strong> access ended. Your trades and journal are kept and premium features unlock again as soon as you renew.</p>`)

	register(TemplateTradeClosedDigest,
		`{{.count}} trades closed {{.period}}`,
		`<p>Hi {{if .name}}{{.name}}{{else}}there{{end}},</p>
<p>You closed <strong>{{.count}}</strong> trades {{.period}} with a net P&amp;L of <strong>{{.net_pnl}}</strong>.</p>
{{if .win_rate}}<p>Win rate: {{.win_rate}}</p>{{end}}`)
}

// Templates returns the names of the registered templates in sorted order.
func Templates() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasTemplate reports whether name is a registered template.
func HasTemplate(name string) bool {
	_, ok := registry[name]
	return ok
}

// RenderSubject renders the subject line of a template.
func RenderSubject(name string, params map[string]string) (string, error) {
	tpl, ok := registry[name]
	if !ok {
		return "", apperrors.NewValidationError("template", name, "unknown email template")
	}
	var buf bytes.Buffer
	if err := tpl.subject.Execute(&buf, params); err != nil {
		return "", apperrors.Wrapf(err, "rendering subject %s", name)
	}
	return buf.String(), nil
}

// RenderHTML renders the HTML body of a template. Parameters are escaped.
func RenderHTML(name string, params map[string]string) (string, error) {
	tpl, ok := registry[name]
	if !ok {
		return "", apperrors.NewValidationError("template", name, "unknown email template")
	}
	var buf bytes.Buffer
	if err := tpl.body.ExecuteTemplate(&buf, "layout", params); err != nil {
		return "", apperrors.Wrapf(err, "rendering body %s", name)
	}
	return buf.String(), nil
}
