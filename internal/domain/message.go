package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Message type tags the bundled client sends. Other tags are stored as sent.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeFile  = "file"
)

// Delivery statuses.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
)

// Media references a resource previously stored through the upload endpoint.
// The URL is opaque to the session core.
type Media struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Content is either plain text or a media reference. On the wire it is a JSON
// string for text and an object for media.
type Content struct {
	Text  string
	Media *Media
}

// TextContent is a shorthand for text-only content.
func TextContent(s string) Content { return Content{Text: s} }

// IsEmpty reports whether the content carries nothing worth broadcasting:
// whitespace-only text, or media without a URL.
func (c Content) IsEmpty() bool {
	if c.Media != nil {
		return strings.TrimSpace(c.Media.URL) == ""
	}
	return strings.TrimSpace(c.Text) == ""
}

// MarshalJSON implements json.Marshaler.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.Media != nil {
		return json.Marshal(c.Media)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*c = Content{}
		return nil
	}
	if strings.HasPrefix(trimmed, "{") {
		var m Media
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		*c = Content{Media: &m}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*c = Content{Text: s}
	return nil
}

// Message is one chat message as stored in a room's history. It is immutable
// once appended except for its reactions.
type Message struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Content   Content   `json:"content"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Reactions Reactions `json:"reactions"`
	Status    string    `json:"status"`
}

// Clone returns a copy of m whose reactions can be handed to other goroutines.
func (m Message) Clone() Message {
	m.Reactions = m.Reactions.Clone()
	if m.Content.Media != nil {
		media := *m.Content.Media
		m.Content.Media = &media
	}
	return m
}
