// Package media issues presigned S3 upload URLs for content assets.
package media

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/contentoor/pkg/apperr"
	"github.com/ethpandaops/contentoor/pkg/config"
	"github.com/ethpandaops/contentoor/pkg/crypto"
)

const (
	randomBytes    = 8
	maxFilenameLen = 128
)

// UploadRequest describes a file the caller is about to upload.
type UploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Upload is a presigned PUT the caller performs directly against S3.
type Upload struct {
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	Key       string            `json:"key"`
	Headers   map[string]string `json:"headers"`
	PublicURL string            `json:"publicUrl,omitempty"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// Presigner generates presigned PUT URLs under a per-repository prefix.
type Presigner struct {
	log           logrus.FieldLogger
	cfg           *config.S3Config
	presignClient *s3.PresignClient
	expiry        time.Duration
	maxSize       int64
	now           func() time.Time
}

// NewPresigner creates a presigner from the media configuration.
func NewPresigner(log logrus.FieldLogger, cfg *config.MediaConfig) (*Presigner, error) {
	expiry, err := time.ParseDuration(cfg.S3.PresignExpiry)
	if err != nil {
		return nil, fmt.Errorf("parsing media.s3.presign_expiry: %w", err)
	}

	maxSize, err := units.FromHumanSize(cfg.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("parsing media.max_size: %w", err)
	}

	return &Presigner{
		log:           log.WithField("component", "media-presigner"),
		cfg:           &cfg.S3,
		presignClient: s3.NewPresignClient(newS3Client(&cfg.S3)),
		expiry:        expiry,
		maxSize:       maxSize,
		now:           time.Now,
	}, nil
}

// PresignUpload validates req and returns a presigned PUT for it under
// {owner}/{repo}/{yyyy}/{mm}/{random}-{filename}.
func (p *Presigner) PresignUpload(
	ctx context.Context, repo string, req UploadRequest,
) (*Upload, error) {
	name := SanitizeFilename(req.Filename)
	if name == "" {
		return nil, apperr.Validation("filename is required")
	}

	if req.ContentType == "" {
		return nil, apperr.Validation("contentType is required")
	}

	if req.Size <= 0 {
		return nil, apperr.Validation("size must be positive")
	}

	if req.Size > p.maxSize {
		return nil, apperr.Validationf("file exceeds the maximum upload size of %s",
			units.HumanSize(float64(p.maxSize)))
	}

	random, err := crypto.GenerateRandomHex(randomBytes)
	if err != nil {
		return nil, fmt.Errorf("generating upload key: %w", err)
	}

	now := p.now().UTC()
	key := path.Join(repo, now.Format("2006"), now.Format("01"), random+"-"+name)

	result, err := p.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.cfg.Bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(req.ContentType),
		ContentLength: aws.Int64(req.Size),
	}, s3.WithPresignExpires(p.expiry))
	if err != nil {
		return nil, fmt.Errorf("presigning upload for %q: %w", key, err)
	}

	p.log.WithField("key", key).WithField("size", req.Size).Debug("Presigned media upload")

	upload := &Upload{
		Method:    result.Method,
		URL:       result.URL,
		Key:       key,
		Headers:   map[string]string{"Content-Type": req.ContentType},
		ExpiresAt: now.Add(p.expiry),
	}

	if p.cfg.PublicBaseURL != "" {
		upload.PublicURL = strings.TrimRight(p.cfg.PublicBaseURL, "/") + "/" + key
	}

	return upload, nil
}

// SanitizeFilename reduces a client supplied name to a safe, lower-case
// object key segment.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}

	var b strings.Builder

	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}

	out := strings.Trim(b.String(), ".-")
	if len(out) > maxFilenameLen {
		out = out[len(out)-maxFilenameLen:]
	}

	return out
}

// newS3Client constructs an S3 client from the media storage config.
func newS3Client(cfg *config.S3Config) *s3.Client {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	return s3.New(s3.Options{}, opts...)
}
