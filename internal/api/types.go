package api

// Message is one chat message as delivered by the server.
type Message struct {
	ID          int64  `json:"id"`
	SenderEmail string `json:"sender_email"`
	SenderName  string `json:"sender_name"`
	Stream      string `json:"stream"`
	Topic       string `json:"topic"`
	Content     string `json:"content"`
	Timestamp   int64  `json:"timestamp"`
}

// Subscription describes one stream the account is subscribed to.
type Subscription struct {
	StreamID    int64  `json:"stream_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

// RegisterResponse is the snapshot returned by queue registration. It seeds a
// freshly constructed account store and anchors the event loop.
type RegisterResponse struct {
	QueueID          string         `json:"queue_id"`
	QueueToken       string         `json:"queue_token"`
	LastEventID      int64          `json:"last_event_id"`
	ServerVersion    string         `json:"server_version"`
	MaxUploadSizeMiB int            `json:"max_upload_size_mib"`
	Subscriptions    []Subscription `json:"subscriptions"`
}

// SendMessageRequest is the body of a message send call.
type SendMessageRequest struct {
	Topic   string `json:"topic"`
	Content string `json:"content"`
}

// SendMessageResponse acknowledges a sent message.
type SendMessageResponse struct {
	ID int64 `json:"id"`
}
