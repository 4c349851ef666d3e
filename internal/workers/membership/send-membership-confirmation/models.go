// internal/workers/membership/send-membership-confirmation/models.go
package sendmembershipconfirmation

type Input struct {
	ApplicationID string `json:"applicationId"`
}

type Output struct {
	NotificationID string   `json:"notificationId"`
	Status         string   `json:"status"` // "sent", "failed", "disabled"
	Channels       []string `json:"channels"`
	SentAt         string   `json:"sentAt"` // ISO 8601
}

// Statuses
const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)

// Channels
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// applicant is the slice of the application row the message needs.
type applicant struct {
	FirstName string
	Email     string
	Phone     string
}
