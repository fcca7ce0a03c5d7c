package privacy

import (
	"net/url"
	"strings"
)

// MaskSecret masks a token showing only the last 4 characters
// Example: "abcdefgh1234" -> "********1234"
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	return maskString(secret, 4)
}

// RedactURL hides the credentials and the path of a backend URL or DSN so it
// can be logged. Scheme, host and port stay readable.
// Example: "postgres://relay:pw@db:5432/civic?sslmode=disable" -> "postgres://relay:***@db:5432/***"
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		// Key/value DSNs and plain paths carry no structure worth keeping.
		return maskString(raw, 0)
	}

	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	if u.User != nil {
		b.WriteString(u.User.Username())
		if _, ok := u.User.Password(); ok {
			b.WriteString(":***")
		}
		b.WriteString("@")
	}
	b.WriteString(u.Host)
	if u.Path != "" && u.Path != "/" {
		b.WriteString("/***")
	}
	return b.String()
}

// MaskWebhookURL keeps the host of a webhook and masks its path, which is the
// secret part of Slack incoming webhooks.
// Example: "https://hooks.slack.com/services/T0/B0/XYZ" -> "https://hooks.slack.com/***"
func MaskWebhookURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return maskString(raw, 0)
	}
	return u.Scheme + "://" + u.Host + "/***"
}

// maskString masks all but the last showLast characters
func maskString(s string, showLast int) string {
	if len(s) <= showLast {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-showLast) + s[len(s)-showLast:]
}
