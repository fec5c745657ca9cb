package message

// Request is an inbound transfer request as delivered by the dispatch socket.
// The populated fields select the wire form; see codec.FromRequest for the
// precedence between them.
type Request struct {
	// Text requests a plain-text injection. A pointer so that an explicit
	// empty string is distinguishable from an absent field.
	Text *string `json:"text,omitempty"`

	// ImageData and MIMEType together request an inline injection.
	ImageData string `json:"image_data,omitempty"`
	MIMEType  string `json:"mime_type,omitempty"`

	// ImageFile names a file holding the inline form, or the metadata record
	// of the split form when DataFile is also set.
	ImageFile string `json:"image_file,omitempty"`

	// DataFile names the raw binary half of a split-form transfer.
	DataFile string `json:"data_file,omitempty"`
}

// TextRequest returns a Request carrying text.
func TextRequest(text string) Request {
	return Request{Text: &text}
}

// Response reports the outcome of one Request.
type Response struct {
	OK    bool   `json:"ok"`
	Kind  Kind   `json:"kind,omitempty"`
	Size  int64  `json:"size,omitempty"`
	Error string `json:"error,omitempty"`
}
