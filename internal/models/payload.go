package models

// PostPayload is what page automation receives for one publish or schedule run.
type PostPayload struct {
	ID            string `json:"id"`
	Title         string `json:"title,omitempty"`
	Content       string `json:"content"`
	ImageURL      string `json:"image_url,omitempty"`
	ImageData     string `json:"image_data,omitempty"`
	ScheduledDate string `json:"scheduled_date,omitempty"`
	ScheduledTime string `json:"scheduled_time,omitempty"`
}

// HasImage reports whether the payload carries an image reference or inline data.
func (p PostPayload) HasImage() bool {
	return p.ImageURL != "" || p.ImageData != ""
}

// Payload builds the automation payload for p with the image reference
// replaced by imageURL.
func (p Post) Payload(imageURL string) PostPayload {
	return PostPayload{
		ID:            p.ID,
		Title:         p.Title,
		Content:       p.Content,
		ImageURL:      imageURL,
		ScheduledDate: p.ScheduledDate,
		ScheduledTime: p.ScheduledTime,
	}
}

// StatusUpdate is the merge applied by a status change.
type StatusUpdate struct {
	Status      Status `json:"status"`
	Error       string `json:"error,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}
