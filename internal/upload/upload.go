package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"shotline/internal/artifact"
	"shotline/internal/batch"
	"shotline/internal/config"
	"shotline/internal/iotype"
	"shotline/internal/logging"
	"shotline/internal/services"
	"shotline/internal/stage"
)

// StageID identifies the upload stage.
const StageID = "upload-images"

// Options configures the destination of one upload run.
type Options struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// StageID implements stage.Options.
func (Options) StageID() string { return StageID }

// PutObjectAPI is the subset of the S3 client used by the stage.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader stores generated images in object storage.
type Uploader struct {
	cfg    *config.Config
	logger *slog.Logger

	once      sync.Once
	client    PutObjectAPI
	clientErr error
}

// NewUploader constructs the upload-images stage implementation. The S3
// client is built on first use.
func NewUploader(cfg *config.Config, logger *slog.Logger) *Uploader {
	return &Uploader{cfg: cfg, logger: logging.NewComponentLogger(logger, "upload")}
}

// NewUploaderWithClient constructs an uploader around an existing client.
func NewUploaderWithClient(cfg *config.Config, logger *slog.Logger, client PutObjectAPI) *Uploader {
	u := NewUploader(cfg, logger)
	u.once.Do(func() { u.client = client })
	return u
}

// DefaultOptions derives options from configuration.
func (u *Uploader) DefaultOptions() Options {
	return Options{Bucket: u.cfg.Upload.Bucket, Prefix: u.cfg.Upload.Prefix}
}

// Stage describes the upload-images stage.
func (u *Uploader) Stage() stage.Stage {
	defaults := u.DefaultOptions()
	return stage.Stage{
		ID:             StageID,
		DisplayName:    "Upload Images",
		Status:         "uploading",
		Description:    "Store generated images in S3 compatible object storage",
		Requires:       iotype.NewSet(iotype.GeneratedImages),
		Produces:       iotype.NewSet(iotype.Uploads),
		Execute:        u.Execute,
		DefaultOptions: defaults,
		DecodeOptions:  stage.DecodeInto(defaults),
		HealthCheck:    u.HealthCheck,
	}
}

// HealthCheck reports whether a bucket is configured and the client builds.
func (u *Uploader) HealthCheck(ctx context.Context, _ *config.Config) stage.Health {
	if strings.TrimSpace(u.cfg.Upload.Bucket) == "" {
		return stage.Unhealthy(StageID, "upload bucket not configured")
	}
	if _, err := u.s3Client(ctx); err != nil {
		return stage.Unhealthy(StageID, err.Error())
	}
	return stage.Healthy(StageID)
}

func (u *Uploader) s3Client(ctx context.Context) (PutObjectAPI, error) {
	u.once.Do(func() {
		u.client, u.clientErr = newS3Client(ctx, u.cfg.Upload)
	})
	return u.client, u.clientErr
}

func newS3Client(ctx context.Context, cfg config.Upload) (*s3.Client, error) {
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, StageID, "load aws config", "", err)
	}

	var s3Opts []func(*s3.Options)
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			// Self-hosted stores often reject the flexible checksum trailers.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

// Execute uploads every generated image.
func (u *Uploader) Execute(ctx context.Context, ec *stage.ExecContext, bag stage.Bag, raw stage.Options) stage.Result {
	opts, err := stage.OptionsAs(raw, u.DefaultOptions())
	if err != nil {
		return stage.Fail(err)
	}
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		return stage.Fail(services.Wrap(services.ErrConfiguration, StageID, "upload", "upload bucket not configured", nil))
	}
	images, err := stage.Get[[]artifact.GeneratedImage](bag, iotype.GeneratedImages)
	if err != nil {
		return stage.Fail(err)
	}
	if len(images) == 0 {
		return stage.Fail(services.Wrap(services.ErrValidation, StageID, "upload", "no generated images", nil))
	}
	client, err := u.s3Client(ctx)
	if err != nil {
		return stage.Fail(err)
	}

	cfg := ec.ConfigOr(u.cfg)
	prefix := strings.Trim(opts.Prefix, "/")
	total := len(images)
	var done atomic.Int64
	summary := batch.Run(ctx, images, func(ctx context.Context, _ int, img artifact.GeneratedImage) (artifact.Upload, error) {
		defer func() {
			n := done.Add(1)
			ec.Report(float64(n)/float64(total)*100, fmt.Sprintf("Uploaded %d/%d images", n, total))
		}()
		key := objectKey(prefix, ec.JobID, img)
		return u.put(ctx, client, bucket, key, img)
	}, batch.Options{
		Concurrency: cfg.StageConcurrency(StageID),
		Max:         cfg.Concurrency.Max,
	})
	if err := ctx.Err(); err != nil {
		return stage.Fail(err)
	}

	report := artifact.ReportFromResults(summary.Results, func(i int) string { return filepath.Base(images[i].Path) })
	uploads := summary.Values()
	if len(uploads) == 0 {
		return stage.Fail(services.Wrap(services.ErrExternalTool, StageID, "upload",
			fmt.Sprintf("all %d uploads failed", total), summary.FirstError()))
	}
	if report.HasFailures() {
		logging.WarnWithContext(ec.Log(), "some images could not be uploaded", "upload_partial",
			logging.String("report", report.Summary()),
			logging.String("bucket", bucket),
			logging.String(logging.FieldErrorHint, "check bucket permissions and connectivity"),
			logging.String(logging.FieldImpact, "some generated images exist only on local disk"),
		)
	}
	ec.Log().Info("images uploaded",
		logging.Int("uploaded", len(uploads)),
		logging.String("bucket", bucket),
		logging.String("prefix", prefix),
	)

	out := stage.Bag{}
	out.Set(iotype.Uploads, uploads)
	out.WithMetadata(StageID, report)
	return stage.Succeed(out)
}

func (u *Uploader) put(ctx context.Context, client PutObjectAPI, bucket, key string, img artifact.GeneratedImage) (artifact.Upload, error) {
	file, err := os.Open(img.Path)
	if err != nil {
		return artifact.Upload{}, services.Wrap(services.ErrNotFound, StageID, "open image", img.Path, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return artifact.Upload{}, services.Wrap(services.ErrNotFound, StageID, "stat image", img.Path, err)
	}
	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	out, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(info.Size()),
		Metadata: map[string]string{
			"variant":         img.Variant,
			"source-frame-id": img.SourceFrameID,
		},
	})
	if err != nil {
		return artifact.Upload{}, classify(err, key)
	}
	return artifact.Upload{
		Path:        img.Path,
		Variant:     img.Variant,
		Bucket:      bucket,
		Key:         key,
		URL:         u.objectURL(bucket, key),
		ETag:        strings.Trim(aws.ToString(out.ETag), `"`),
		ContentType: contentType,
		SizeBytes:   info.Size(),
	}, nil
}

func (u *Uploader) objectURL(bucket, key string) string {
	if base := strings.TrimRight(strings.TrimSpace(u.cfg.Upload.PublicBaseURL), "/"); base != "" {
		return base + "/" + key
	}
	return "s3://" + bucket + "/" + key
}

// objectKey builds prefix/job/variant/file.
func objectKey(prefix, jobID string, img artifact.GeneratedImage) string {
	parts := make([]string, 0, 4)
	for _, part := range []string{prefix, jobID, img.Variant} {
		if part = strings.Trim(part, "/"); part != "" {
			parts = append(parts, part)
		}
	}
	parts = append(parts, filepath.Base(img.Path))
	return path.Join(parts...)
}

func classify(err error, key string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch code := respErr.HTTPStatusCode(); {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, StageID, "put object", key, err)
		case code == http.StatusNotFound:
			return services.Wrap(services.ErrNotFound, StageID, "put object", key, err)
		case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
			return services.Wrap(services.ErrTransient, StageID, "put object", key, err)
		}
	}
	return services.Wrap(services.ErrExternalTool, StageID, "put object", key, err)
}
