package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/platinummonkey/mediahub/pkg/media"
)

// ObjectStore is an in-process blob store. Presigned URLs are placeholders;
// uploads are simulated with Put. Sizes admitted by PresignPut are remembered per key
// the way S3 keeps them as object metadata.
type ObjectStore struct {
	mu       sync.RWMutex
	objects  map[string]*media.ObjectInfo
	admitted map[string]int64
}

// NewObjectStore creates an empty object store
func NewObjectStore() *ObjectStore {
	return &ObjectStore{objects: map[string]*media.ObjectInfo{}, admitted: map[string]int64{}}
}

// Put records an object as uploaded
func (o *ObjectStore) Put(key, contentType string, size int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = &media.ObjectInfo{Key: key, ContentLength: size, ContentType: contentType}
}

// Exists reports whether key is stored
func (o *ObjectStore) Exists(key string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.objects[key]
	return ok
}

func (o *ObjectStore) PresignPut(_ context.Context, key, contentType string, size int64, ttl time.Duration) (*media.PresignedRequest, error) {
	o.mu.Lock()
	o.admitted[key] = size
	o.mu.Unlock()

	return &media.PresignedRequest{
		URL:    fmt.Sprintf("memory://%s?expires=%d", key, int(ttl.Seconds())),
		Method: "PUT",
		Headers: map[string]string{
			"content-type": contentType,
			"x-amz-meta-" + media.AdmittedBytesKey: strconv.FormatInt(size, 10),
		},
	}, nil
}

func (o *ObjectStore) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("memory://%s?expires=%d", key, int(ttl.Seconds())), nil
}

func (o *ObjectStore) Head(_ context.Context, key string) (*media.ObjectInfo, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	info, ok := o.objects[key]
	if !ok {
		return nil, media.ErrObjectNotFound
	}
	cp := *info
	cp.AdmittedBytes = o.admitted[key]
	return &cp, nil
}

func (o *ObjectStore) Delete(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, key)
	delete(o.admitted, key)
	return nil
}
