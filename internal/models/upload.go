package models

// UploadedFile is a document staged on local disk by the transport layer.
type UploadedFile struct {
	Path         string
	MimeType     string
	OriginalName string
	Size         int64
}
