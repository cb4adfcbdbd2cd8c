package archive

import (
	"context"
	"errors"
	"fmt"

	"gocloud.dev/blob"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// BlobArchive stores raw webhook bodies in a gocloud.dev bucket, supporting
// S3, GCS, Azure Blob Storage, local directories and memory
type BlobArchive struct {
	bucket *blob.Bucket
	prefix string
}

var ErrOpenBucket = errors.New("failed to open archive bucket")

const contentType = "application/json"

// NewBlobArchive opens the bucket at bucketURL. Keys are written under
// prefix
func NewBlobArchive(
	ctx context.Context, bucketURL, prefix string,
) (*BlobArchive, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenBucket, err)
	}
	return &BlobArchive{bucket: bucket, prefix: prefix}, nil
}

// Archive writes raw under a key derived from the event ID and returns the
// key
func (a *BlobArchive) Archive(
	ctx context.Context, eventID string, raw []byte,
) (string, error) {
	key := a.keyFor(eventID)
	err := a.bucket.WriteAll(ctx, key, raw, &blob.WriterOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

func (a *BlobArchive) Close() error {
	return a.bucket.Close()
}

func (a *BlobArchive) keyFor(eventID string) string {
	return a.prefix + eventID + ".json"
}
