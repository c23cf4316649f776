package entity

// NotificationJob is the unit of work handed to the notification queue
// when a repository check detects activity. The producing check job does
// not wait for delivery; the dispatcher owns everything past enqueue.
type NotificationJob struct {
	RepositoryName string `json:"repository_name"`
	Owner          string `json:"owner"`
	RecipientEmail string `json:"recipient_email"`
}
