package storage

import (
	"context"
	"time"
)

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified *time.Time
}

// UploadOptions conveys upload destination metadata.
type UploadOptions struct {
	Bucket           string
	KeyPrefix        string
	ProgressCallback func(done, total int64)
}

// Service copies packaging artifacts to remote object storage.
type Service interface {
	UploadFiles(ctx context.Context, paths []string, opts UploadOptions) ([]string, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}

// ClientConfig selects the S3 endpoint and credentials.
type ClientConfig struct {
	Region   string
	Endpoint string
	Profile  string
}
