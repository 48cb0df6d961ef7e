package media

import (
	"context"
	"time"
)

// Store persists media records
type Store interface {
	PutMedia(ctx context.Context, record *Record) error
	// GetMedia returns ErrMediaNotFound when the item does not exist in the team
	GetMedia(ctx context.Context, teamID, mediaID string) (*Record, error)
	DeleteMedia(ctx context.Context, teamID, mediaID string) error
	// ListMedia returns up to limit items with a sort key strictly below cursor, newest first.
	// An empty cursor starts from the newest item.
	ListMedia(ctx context.Context, teamID string, limit int, cursor string) ([]*Record, error)
	// SumSizeBytes returns the item count and total size of a team's media
	SumSizeBytes(ctx context.Context, teamID string) (int, int64, error)
}

// ObjectStore is the blob storage holding uploaded bytes
type ObjectStore interface {
	// PresignPut signs a PUT of exactly size bytes. The admitted size is stored with the
	// object and reported back by Head as ObjectInfo.AdmittedBytes.
	PresignPut(ctx context.Context, key, contentType string, size int64, ttl time.Duration) (*PresignedRequest, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Head returns ErrObjectNotFound when the object is not visible
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}
