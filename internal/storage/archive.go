// Package storage archives generated report files to S3.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/adops-console/internal/config"
	"github.com/ignite/adops-console/internal/settings"
)

// s3API is the slice of the S3 client the archive uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// SettingsSource reads runtime settings by key.
type SettingsSource interface {
	Get(key string) string
}

// Archive uploads local report files to an S3 bucket.
type Archive struct {
	client        s3API
	region        string
	defaultBucket string
}

// UploadResult describes one stored object.
type UploadResult struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	URL    string `json:"url"`
	Size   int64  `json:"size"`
}

// NewArchive builds the S3 client. Credentials from the settings store
// take precedence so operators can configure archiving through the
// settings API; otherwise the default AWS credential chain applies.
func NewArchive(ctx context.Context, cfg config.StorageConfig, src SettingsSource) (*Archive, error) {
	region := cfg.S3Region
	var accessKey, secretKey, bucket string
	if src != nil {
		accessKey = strings.TrimSpace(src.Get(settings.KeyAWSAccessKeyID))
		secretKey = strings.TrimSpace(src.Get(settings.KeyAWSSecretAccessKey))
		if r := strings.TrimSpace(src.Get(settings.KeyAWSRegion)); r != "" {
			region = r
		}
		bucket = strings.TrimSpace(src.Get(settings.KeyArchiveBucket))
	}
	if region == "" {
		region = "us-east-1"
	}
	if bucket == "" {
		bucket = cfg.S3Bucket
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &Archive{
		client:        s3.NewFromConfig(awsCfg),
		region:        region,
		defaultBucket: bucket,
	}, nil
}

// DefaultBucket returns the bucket used when a request names none.
func (a *Archive) DefaultBucket() string { return a.defaultBucket }

// Upload stores a local file under key in bucket and returns the
// object location and size.
func (a *Archive) Upload(ctx context.Context, localPath, bucket, key string) (*UploadResult, error) {
	if bucket == "" {
		bucket = a.defaultBucket
	}
	if bucket == "" {
		return nil, fmt.Errorf("no archive bucket configured")
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", localPath, err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentType:   aws.String(contentTypeFor(localPath)),
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return nil, fmt.Errorf("putting object to S3: %w", err)
	}

	return &UploadResult{
		Bucket: bucket,
		Key:    key,
		URL:    fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, a.region, key),
		Size:   info.Size(),
	}, nil
}

// Test verifies the bucket exists and is reachable with the current
// credentials.
func (a *Archive) Test(ctx context.Context, bucket string) error {
	if bucket == "" {
		bucket = a.defaultBucket
	}
	if bucket == "" {
		return fmt.Errorf("no archive bucket configured")
	}
	if _, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", bucket, err)
	}
	return nil
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "text/csv"
	case ".zip":
		return "application/zip"
	case ".pdf":
		return "application/pdf"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
