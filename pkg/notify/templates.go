package notify

import (
	"fmt"
	"strings"
	"time"
)

// AlertContext carries the fields templates interpolate. It deliberately
// mirrors the security alert record rather than importing it, keeping this
// package free of domain dependencies.
type AlertContext struct {
	AlertID   string
	UserID    string
	UserEmail string
	AlertType string
	Severity  string
	Reason    string
	DeviceID  string
	IPAddress string
	Country   string
	When      time.Time
}

// BuildMessage renders the e-mail and SMS templates for a security alert.
func BuildMessage(a AlertContext) Message {
	when := a.When.UTC().Format(time.RFC1123)

	subject := fmt.Sprintf("Security alert: %s on your account", humanize(a.AlertType))

	var b strings.Builder
	fmt.Fprintf(&b, "We detected a %s sign-in on your account at %s.\n\n", humanize(a.AlertType), when)
	if a.Reason != "" {
		fmt.Fprintf(&b, "Details: %s\n", a.Reason)
	}
	if a.Country != "" {
		fmt.Fprintf(&b, "Location: %s\n", a.Country)
	}
	if a.IPAddress != "" {
		fmt.Fprintf(&b, "IP address: %s\n", a.IPAddress)
	}
	if a.DeviceID != "" {
		fmt.Fprintf(&b, "Device: %s\n", a.DeviceID)
	}
	b.WriteString("\nIf this was you, no action is needed. Otherwise, change your password and contact support immediately.")

	sms := fmt.Sprintf("Security alert: %s sign-in at %s. Not you? Change your password now.", humanize(a.AlertType), when)

	return Message{
		AlertID:      a.AlertID,
		UserID:       a.UserID,
		AlertType:    a.AlertType,
		Severity:     a.Severity,
		EmailSubject: subject,
		EmailBody:    b.String(),
		SMSBody:      sms,
		CreatedAt:    a.When.UTC(),
	}
}

func humanize(alertType string) string {
	return strings.ReplaceAll(alertType, "_", " ")
}
