package domain

import "time"

// Attachment is the handle a candidate record keeps for a stored resume.
// The bytes live in the attachment store under Key.
type Attachment struct {
	Key      string
	Filename string
	MimeType string
	Size     int64
}

// AttachmentContent is a resume read back from the store.
type AttachmentContent struct {
	Data     []byte
	Filename string
	MimeType string
}

// StoredObject describes an object found while listing the attachment store.
type StoredObject struct {
	Key        string
	ModifiedAt time.Time
}
