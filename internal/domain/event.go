package domain

// Upload notification event names
const (
	EventUploadProgress = "upload:progress"
	EventUploadError    = "upload:error"
	EventUploadComplete = "upload:complete"
)

// DefaultUploadChannel is the topic used when a client does not name one
const DefaultUploadChannel = "upload"

// Event is a message published on an upload notification channel
type Event struct {
	Channel string       `json:"channel"`
	Name    string       `json:"event"`
	Payload EventPayload `json:"payload"`
}

// EventPayload carries the fields used by the three upload events. Progress
// events set Message, error events set Error, complete events set ID and Title.
type EventPayload struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	ID      string `json:"id,omitempty"`
	Title   string `json:"title,omitempty"`
}

func ProgressEvent(channel, message string) Event {
	return Event{Channel: channel, Name: EventUploadProgress, Payload: EventPayload{Message: message}}
}

func ErrorEvent(channel, errMsg string) Event {
	return Event{Channel: channel, Name: EventUploadError, Payload: EventPayload{Error: errMsg}}
}

func CompleteEvent(channel, documentID, title string) Event {
	return Event{Channel: channel, Name: EventUploadComplete, Payload: EventPayload{ID: documentID, Title: title}}
}
