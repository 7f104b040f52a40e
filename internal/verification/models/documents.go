package models

import "io"

// DocumentMeta is what the validator sees of an uploaded file.
type DocumentMeta struct {
	OriginalName string
	MimeType     string
	SizeBytes    int64
}

// DocumentUpload is a file on its way to document storage. MaxBytes is
// enforced again while streaming since the declared size is client input.
type DocumentUpload struct {
	DocumentMeta
	OwnerID  string
	Content  io.Reader
	MaxBytes int64
}

// StoredDocument is what document storage hands back once bytes are durable.
type StoredDocument struct {
	Ref       string
	Digest    string
	SizeBytes int64
}
