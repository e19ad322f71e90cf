package model

import "time"

type NotificationKind string

const (
	NotifyConfirmation NotificationKind = "CONFIRMATION"
	NotifyCancellation NotificationKind = "CANCELLATION"
	NotifyReminder     NotificationKind = "REMINDER"
	NotifyReschedule   NotificationKind = "RESCHEDULE"
	NotifyNoShow       NotificationKind = "NO_SHOW"
)

// Notification is the persisted record of a dispatched message. Delivery is
// best-effort; the row exists either way.
type Notification struct {
	ID            string
	RecipientID   string
	AppointmentID string
	Kind          NotificationKind
	Subject       string
	Body          string
	Status        string
	SentAt        time.Time
}
