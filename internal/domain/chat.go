package domain

// ChatMessage is the chat-completions message shape sent to the inference
// endpoint. Content is a list of parts so a single user turn can carry the
// instruction text and the inline image together.
type ChatMessage struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart is one element of a multimodal message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

const (
	PartTypeText  = "text"
	PartTypeImage = "image_url"
)

// TextPart returns a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartTypeText, Text: text}
}

// ImagePart returns an inline image content part referencing a base64 data URL.
func ImagePart(mime, b64 string) ContentPart {
	return ContentPart{Type: PartTypeImage, ImageURL: &ImageURL{URL: DataURL(mime, b64)}}
}

// DataURL builds a data: URI for base64-encoded image bytes.
func DataURL(mime, b64 string) string {
	return "data:" + mime + ";base64," + b64
}
