package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Options configures where split archives are exported.
type Options struct {
	Bucket    string
	Region    string
	Endpoint  string // optional, for S3 compatible stores
	AccessKey string // optional, falls back to the default credential chain
	SecretKey string
	Prefix    string
	// Password, when set, encrypts objects before upload.
	Password string
}

// S3Exporter uploads archives and documents to a bucket.
type S3Exporter struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	password string
}

// Export describes one uploaded object.
type Export struct {
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	Version   int    `json:"version"`
	Size      int    `json:"size"`
	Encrypted bool   `json:"encrypted"`
	ETag      string `json:"etag,omitempty"`
}

// NewS3Exporter creates a new exporter from opts.
func NewS3Exporter(ctx context.Context, opts Options) (*S3Exporter, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 export: bucket is required")
	}
	var loadOpts []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Exporter{
		client:   cli,
		uploader: manager.NewUploader(cli),
		bucket:   opts.Bucket,
		prefix:   strings.Trim(opts.Prefix, "/"),
		password: opts.Password,
	}, nil
}

func (s *S3Exporter) Bucket() string { return s.bucket }

// Ping checks the bucket is reachable with the configured credentials.
func (s *S3Exporter) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

// Upload stores data as the next version of fileName, e.g.
// "<prefix>/split_pdfs_v3.zip". meta becomes S3 user metadata.
func (s *S3Exporter) Upload(ctx context.Context, fileName string, data []byte, contentType string, meta map[string]string) (Export, error) {
	ext := path.Ext(fileName)
	base := path.Join(s.prefix, strings.TrimSuffix(fileName, ext))
	version, err := s.NextVersion(ctx, base, ext)
	if err != nil {
		return Export{}, err
	}
	key := fmt.Sprintf("%s_v%d%s", base, version, ext)

	body := data
	s3Metadata := map[string]string{"name": fileName}
	for k, v := range meta {
		s3Metadata[k] = v
	}
	if s.password != "" {
		if body, err = Encrypt(data, s.password); err != nil {
			return Export{}, fmt.Errorf("failed to encrypt data: %w", err)
		}
		s3Metadata["encrypted"] = "true"
		s3Metadata["encryption-format"] = formatCBC
	}

	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata:    s3Metadata,
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("s3 upload failed")
		return Export{}, fmt.Errorf("failed to upload to S3: %w", err)
	}

	exp := Export{Bucket: s.bucket, Key: key, Version: version, Size: len(data), Encrypted: s.password != ""}
	if out.ETag != nil {
		exp.ETag = strings.Trim(*out.ETag, `"`)
	}
	log.Info().Str("bucket", s.bucket).Str("key", key).Int("size", len(data)).Bool("encrypted", exp.Encrypted).Msg("uploaded archive to S3")
	return exp, nil
}

// Download fetches key and decrypts it when it carries an encryption header.
func (s *S3Exporter) Download(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object: %w", err)
	}
	if !IsEncrypted(data) {
		return data, nil
	}
	if s.password == "" {
		return nil, fmt.Errorf("object %s is encrypted and no password is configured", key)
	}
	return Decrypt(data, s.password)
}

// NextVersion returns the next free N for keys shaped base_v{N}{ext}.
func (s *S3Exporter) NextVersion(ctx context.Context, base, ext string) (int, error) {
	prefix := base + "_v"
	maxVersion := 0

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("list versions failed: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			verStr := strings.TrimSuffix(strings.TrimPrefix(*obj.Key, prefix), ext)
			if n, err := strconv.Atoi(verStr); err == nil && n > maxVersion {
				maxVersion = n
			}
		}
	}
	return maxVersion + 1, nil
}
