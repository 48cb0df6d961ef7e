package media

import (
	"errors"
	"time"
)

// DefaultAlbum is used when an upload names no album
const DefaultAlbum = "All uploads"

// AdmittedBytesKey is the object metadata key carrying the size admitted at presign
const AdmittedBytesKey = "admitted-bytes"

// Record is one stored media item
type Record struct {
	TeamID      string    `json:"team_id"`
	SortKey     string    `json:"sk"`
	MediaID     string    `json:"media_id"`
	ObjectKey   string    `json:"object_key"`
	ThumbKey    string    `json:"thumb_key,omitempty"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	AlbumName   string    `json:"album_name"`
	UploaderID  string    `json:"uploader_user_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Page is one page of a team's media, newest first
type Page struct {
	Items      []*Record `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// ObjectInfo is the metadata of a stored object
type ObjectInfo struct {
	Key           string
	ContentLength int64
	ContentType   string
	// AdmittedBytes is the size signed into the upload URL, zero when unknown
	AdmittedBytes int64
}

// PresignedRequest is a signed URL the client uses directly against object storage
type PresignedRequest struct {
	URL     string
	Method  string
	Headers map[string]string
}

var (
	ErrMediaNotFound    = errors.New("media not found")
	ErrObjectNotFound   = errors.New("uploaded object not found yet")
	ErrInvalidRequest   = errors.New("invalid media request")
	ErrInvalidCursor    = errors.New("invalid cursor")
	ErrForeignObjectKey = errors.New("object key does not belong to this upload")
	ErrObjectMismatch   = errors.New("uploaded object does not match the admitted upload")
)
