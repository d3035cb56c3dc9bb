package enums

// WebhookEventStatus is the normalized outcome a gateway adapter extracts
// from a raw webhook payload. Malformed payloads normalize to ignored.
type WebhookEventStatus string

const (
	WebhookEventSuccess WebhookEventStatus = "success"
	WebhookEventFailed  WebhookEventStatus = "failed"
	WebhookEventIgnored WebhookEventStatus = "ignored"
)

// String implements fmt.Stringer.
func (w WebhookEventStatus) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WebhookEventStatus.
func (w WebhookEventStatus) IsValid() bool {
	switch w {
	case WebhookEventSuccess, WebhookEventFailed, WebhookEventIgnored:
		return true
	default:
		return false
	}
}
