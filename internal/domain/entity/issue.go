package entity

import "time"

// Issue is a single issue returned by a provider's updated-issues listing.
// Only the fields the notification pipeline needs are mapped; the raw
// provider payload is not retained.
type Issue struct {
	Number    int64     `json:"number"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	HTMLURL   string    `json:"html_url"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TimelineEvent is one entry of an issue's event timeline.
type TimelineEvent struct {
	Event     string    `json:"event"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}
