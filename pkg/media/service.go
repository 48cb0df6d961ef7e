package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/mediahub/pkg/auth"
	"github.com/platinummonkey/mediahub/pkg/observability"
	"github.com/platinummonkey/mediahub/pkg/teams"
)

const (
	DefaultListLimit = 30
	MaxListLimit     = 50
)

// Admitter decides whether an upload may start, and whether a stored object is acceptable
type Admitter interface {
	AdmitUpload(ctx context.Context, teamID string, size int64, contentType string) (teams.Decision, error)
	CheckObject(size int64, contentType string) error
}

// UsageCounter moves a team's used_bytes
type UsageCounter interface {
	IncrementUsedBytes(ctx context.Context, teamID string, delta int64) error
}

// Config holds presigned URL lifetimes
type Config struct {
	UploadURLTTL   time.Duration
	DownloadURLTTL time.Duration
}

// DefaultConfig returns 15 minute URL lifetimes
func DefaultConfig() Config {
	return Config{UploadURLTTL: 15 * time.Minute, DownloadURLTTL: 15 * time.Minute}
}

// PresignRequest starts an upload
type PresignRequest struct {
	Filename    string
	ContentType string
	SizeBytes   int64
}

// PresignedUpload tells the client where and how to PUT the bytes
type PresignedUpload struct {
	MediaID         string            `json:"media_id"`
	ObjectKey       string            `json:"object_key"`
	UploadURL       string            `json:"upload_url"`
	ExpiresIn       int               `json:"expires_in"`
	RequiredHeaders map[string]string `json:"required_headers"`
}

// CompleteRequest finishes an upload
type CompleteRequest struct {
	MediaID     string
	ObjectKey   string
	Filename    string
	ContentType string
	SizeBytes   int64
	AlbumName   string
}

// Download is a short-lived read URL
type Download struct {
	URL       string `json:"download_url"`
	ExpiresIn int    `json:"expires_in"`
}

// Service runs the media operations for a resolved principal
type Service struct {
	store   Store
	objects ObjectStore
	gate    Admitter
	usage   UsageCounter
	config  Config
	now     func() time.Time
}

// NewService creates a media service
func NewService(store Store, objects ObjectStore, gate Admitter, usage UsageCounter, config Config) *Service {
	return &Service{store: store, objects: objects, gate: gate, usage: usage, config: config, now: time.Now}
}

// WithClock returns a copy using now as its clock
func (s *Service) WithClock(now func() time.Time) *Service {
	clone := *s
	clone.now = now
	return &clone
}

// ObjectKey builds the storage key of an upload. Slashes in the filename are flattened.
func ObjectKey(teamID, mediaID, filename string) string {
	return fmt.Sprintf("media/%s/%s/%s", teamID, mediaID, strings.ReplaceAll(filename, "/", "_"))
}

// SortKey orders a team's media by creation time
func SortKey(createdAt time.Time, mediaID string) string {
	return fmt.Sprintf("%d#%s", createdAt.Unix(), mediaID)
}

// PresignUpload admits the upload against the team's quota and returns a presigned PUT.
// Quota rejections are returned as *teams.QuotaError.
func (s *Service) PresignUpload(ctx context.Context, actor *auth.Principal, req PresignRequest) (*PresignedUpload, error) {
	if err := auth.Authorize(actor, auth.MediaUpload); err != nil {
		return nil, err
	}

	filename := strings.TrimSpace(req.Filename)
	contentType := strings.ToLower(strings.TrimSpace(req.ContentType))
	if filename == "" || contentType == "" {
		return nil, fmt.Errorf("%w: filename and content_type are required", ErrInvalidRequest)
	}

	decision, err := s.gate.AdmitUpload(ctx, actor.TeamID, req.SizeBytes, contentType)
	if err != nil {
		return nil, err
	}
	if !decision.Admitted {
		return nil, decision.Err()
	}

	mediaID := uuid.NewString()
	key := ObjectKey(actor.TeamID, mediaID, filename)
	presigned, err := s.objects.PresignPut(ctx, key, contentType, req.SizeBytes, s.config.UploadURLTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	headers := map[string]string{"content-type": contentType}
	for k, v := range presigned.Headers {
		headers[strings.ToLower(k)] = v
	}

	return &PresignedUpload{
		MediaID:         mediaID,
		ObjectKey:       key,
		UploadURL:       presigned.URL,
		ExpiresIn:       int(s.config.UploadURLTTL.Seconds()),
		RequiredHeaders: headers,
	}, nil
}

// Complete records an uploaded object and adds its stored size to the team's usage.
// Completing the same media id twice returns the existing record unchanged. An object
// that does not match what was declared and admitted is deleted and rejected.
func (s *Service) Complete(ctx context.Context, actor *auth.Principal, req CompleteRequest) (*Record, error) {
	if err := auth.Authorize(actor, auth.MediaComplete); err != nil {
		return nil, err
	}

	req.MediaID = strings.TrimSpace(req.MediaID)
	req.ObjectKey = strings.TrimSpace(req.ObjectKey)
	req.Filename = strings.TrimSpace(req.Filename)
	req.ContentType = normalizeContentType(req.ContentType)
	if req.MediaID == "" || req.ObjectKey == "" || req.Filename == "" || req.ContentType == "" || req.SizeBytes <= 0 {
		return nil, fmt.Errorf("%w: media_id, object_key, filename, content_type, size_bytes are required", ErrInvalidRequest)
	}
	if !strings.HasPrefix(req.ObjectKey, fmt.Sprintf("media/%s/%s/", actor.TeamID, req.MediaID)) {
		return nil, ErrForeignObjectKey
	}

	existing, err := s.store.GetMedia(ctx, actor.TeamID, req.MediaID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrMediaNotFound) {
		return nil, fmt.Errorf("failed to get media: %w", err)
	}

	info, err := s.objects.Head(ctx, req.ObjectKey)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to head object: %w", err)
	}

	if err := s.verifyObject(ctx, actor.TeamID, req, info); err != nil {
		if isRejection(err) {
			s.discard(ctx, req.ObjectKey, err)
		}
		return nil, err
	}

	size := info.ContentLength
	album := strings.TrimSpace(req.AlbumName)
	if album == "" {
		album = DefaultAlbum
	}

	now := s.now().UTC()
	record := &Record{
		TeamID:      actor.TeamID,
		SortKey:     SortKey(now, req.MediaID),
		MediaID:     req.MediaID,
		ObjectKey:   req.ObjectKey,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		SizeBytes:   size,
		AlbumName:   album,
		UploaderID:  actor.Subject,
		CreatedAt:   now,
	}
	if err := s.store.PutMedia(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store media: %w", err)
	}

	if err := s.usage.IncrementUsedBytes(ctx, actor.TeamID, size); err != nil {
		observability.FromContext(ctx).WithError(err).WithField("media_id", record.MediaID).
			Warn("Failed to increment used bytes, storage repair will correct it")
	}

	return record, nil
}

// verifyObject compares the stored object with the declared upload and the size signed at
// presign. Objects without a recorded admission go through the quota gate again.
func (s *Service) verifyObject(ctx context.Context, teamID string, req CompleteRequest, info *ObjectInfo) error {
	stored := normalizeContentType(info.ContentType)
	if stored != req.ContentType {
		return fmt.Errorf("%w: stored content type %q, declared %q", ErrObjectMismatch, stored, req.ContentType)
	}
	if info.ContentLength > req.SizeBytes {
		return fmt.Errorf("%w: stored %d bytes, declared %d", ErrObjectMismatch, info.ContentLength, req.SizeBytes)
	}
	if info.AdmittedBytes > 0 && info.ContentLength > info.AdmittedBytes {
		return fmt.Errorf("%w: stored %d bytes, admitted %d", ErrObjectMismatch, info.ContentLength, info.AdmittedBytes)
	}
	if err := s.gate.CheckObject(info.ContentLength, stored); err != nil {
		return err
	}
	if info.AdmittedBytes > 0 {
		return nil
	}

	decision, err := s.gate.AdmitUpload(ctx, teamID, info.ContentLength, stored)
	if err != nil {
		return err
	}
	return decision.Err()
}

func isRejection(err error) bool {
	return errors.Is(err, ErrObjectMismatch) ||
		errors.Is(err, teams.ErrInvalidSize) ||
		errors.Is(err, teams.ErrTooLarge) ||
		errors.Is(err, teams.ErrUnsupportedContentType) ||
		teams.IsQuotaExceeded(err)
}

// discard removes a rejected object so it never sits in the bucket uncounted
func (s *Service) discard(ctx context.Context, key string, reason error) {
	logger := observability.FromContext(ctx).WithField("object_key", key)
	logger.WithField("reason", reason.Error()).Warn("Rejected uploaded object")
	if err := s.objects.Delete(ctx, key); err != nil {
		logger.WithError(err).Warn("Failed to delete rejected object")
	}
}

// normalizeContentType lowercases a media type and drops its parameters
func normalizeContentType(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// List returns one page of the team's media, newest first
func (s *Service) List(ctx context.Context, actor *auth.Principal, limit int, cursor string) (*Page, error) {
	if err := auth.Authorize(actor, auth.MediaList); err != nil {
		return nil, err
	}

	limit = ClampLimit(limit)
	after, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	items, err := s.store.ListMedia(ctx, actor.TeamID, limit+1, after)
	if err != nil {
		return nil, fmt.Errorf("failed to list media: %w", err)
	}

	page := &Page{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.NextCursor = EncodeCursor(page.Items[limit-1].SortKey)
	}
	if page.Items == nil {
		page.Items = []*Record{}
	}
	return page, nil
}

// Download presigns a GET for one of the team's items
func (s *Service) Download(ctx context.Context, actor *auth.Principal, mediaID string) (*Download, error) {
	if err := auth.Authorize(actor, auth.MediaDownload); err != nil {
		return nil, err
	}

	record, err := s.store.GetMedia(ctx, actor.TeamID, mediaID)
	if err != nil {
		return nil, err
	}

	url, err := s.objects.PresignGet(ctx, record.ObjectKey, s.config.DownloadURLTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to presign download: %w", err)
	}
	return &Download{URL: url, ExpiresIn: int(s.config.DownloadURLTTL.Seconds())}, nil
}

// Delete removes an item and its objects. Uploaders may only delete what they uploaded.
func (s *Service) Delete(ctx context.Context, actor *auth.Principal, mediaID string) (*Record, error) {
	if err := auth.Authorize(actor, auth.MediaDelete); err != nil {
		return nil, err
	}

	record, err := s.store.GetMedia(ctx, actor.TeamID, mediaID)
	if err != nil {
		return nil, err
	}
	if actor.Role != auth.RoleAdmin && record.UploaderID != actor.Subject {
		return nil, fmt.Errorf("%w: only the uploader or an admin may delete", auth.ErrForbidden)
	}

	logger := observability.FromContext(ctx).WithField("media_id", mediaID)
	for _, key := range []string{record.ObjectKey, record.ThumbKey} {
		if key == "" {
			continue
		}
		if err := s.objects.Delete(ctx, key); err != nil {
			logger.WithError(err).Warn("Failed to delete object")
		}
	}

	if err := s.store.DeleteMedia(ctx, actor.TeamID, mediaID); err != nil {
		return nil, fmt.Errorf("failed to delete media: %w", err)
	}

	if err := s.usage.IncrementUsedBytes(ctx, actor.TeamID, -record.SizeBytes); err != nil {
		logger.WithError(err).Warn("Failed to decrement used bytes, storage repair will correct it")
	}
	return record, nil
}

// ClampLimit applies the default page size and bounds it to [1, MaxListLimit]
func ClampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultListLimit
	case limit < 1:
		return 1
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

// EncodeCursor makes a sort key opaque to clients
func EncodeCursor(sortKey string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(sortKey))
}

// DecodeCursor reverses EncodeCursor. An empty cursor decodes to an empty sort key.
func DecodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil || !strings.Contains(string(raw), "#") {
		return "", ErrInvalidCursor
	}
	return string(raw), nil
}
