package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"shotline/internal/artifact"
	"shotline/internal/iotype"
	"shotline/internal/logging"
	"shotline/internal/services"
	"shotline/internal/stage"
	"shotline/internal/testsupport"
)

type storedObject struct {
	body        string
	contentType string
}

// fakeS3 accepts path-style PutObject requests.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]storedObject
	server  *httptest.Server
}

func newFakeS3(t *testing.T) *fakeS3 {
	t.Helper()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "missing-config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "missing-credentials"))
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	f := &fakeS3{objects: map[string]storedObject{}}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/denied/") {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.objects[r.URL.Path] = storedObject{body: string(body), contentType: r.Header.Get("Content-Type")}
		f.mu.Unlock()
		w.Header().Set("ETag", `"etag-`+filepath.Base(r.URL.Path)+`"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeS3) object(path string) (storedObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[path]
	return obj, ok
}

func generatedBag(t *testing.T, dir string, names ...string) stage.Bag {
	t.Helper()
	images := make([]artifact.GeneratedImage, 0, len(names))
	for i, name := range names {
		path := filepath.Join(dir, name)
		if !strings.HasPrefix(name, "missing") {
			if err := os.WriteFile(path, []byte("image-"+name), 0o644); err != nil {
				t.Fatalf("write image: %v", err)
			}
		}
		images = append(images, artifact.GeneratedImage{
			Variant:     strings.SplitN(name, "-", 2)[0],
			Path:        path,
			Index:       i + 1,
			ContentType: "image/png",
		})
	}
	return stage.Bag{}.Set(iotype.GeneratedImages, images)
}

func TestUploadStoresObjectsAgainstS3Endpoint(t *testing.T) {
	s3srv := newFakeS3(t)
	cfg := testsupport.NewConfig(t, testsupport.WithUploadEndpoint(s3srv.server.URL, "catalog"))
	cfg.Upload.Prefix = "shots/"
	cfg.Upload.PublicBaseURL = "https://cdn.example.com/catalog/"
	uploader := NewUploader(cfg, logging.NewNop())
	ec, progress := testsupport.NewExecContext(t, cfg, "")

	result := uploader.Execute(context.Background(), ec, generatedBag(t, ec.Dirs.Generated, "red-01.png", "blue-01.png"), nil)
	out, err := result.Get()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	uploads, err := stage.Get[[]artifact.Upload](out, iotype.Uploads)
	if err != nil {
		t.Fatalf("uploads: %v", err)
	}
	if len(uploads) != 2 {
		t.Fatalf("expected 2 uploads, got %+v", uploads)
	}
	first := uploads[0]
	if first.Key != "shots/job-test/red/red-01.png" || first.Bucket != "catalog" {
		t.Fatalf("unexpected key %q bucket %q", first.Key, first.Bucket)
	}
	if first.URL != "https://cdn.example.com/catalog/shots/job-test/red/red-01.png" {
		t.Fatalf("unexpected url %q", first.URL)
	}
	if first.ETag != "etag-red-01.png" || first.SizeBytes != int64(len("image-red-01.png")) {
		t.Fatalf("unexpected upload %+v", first)
	}

	obj, ok := s3srv.object("/catalog/shots/job-test/red/red-01.png")
	if !ok {
		t.Fatal("object not stored under path-style key")
	}
	if obj.body != "image-red-01.png" || obj.contentType != "image/png" {
		t.Fatalf("unexpected stored object %+v", obj)
	}
	updates := progress.Updates()
	if len(updates) == 0 || updates[len(updates)-1].Percent != 100 {
		t.Fatalf("expected final progress 100, got %+v", updates)
	}
}

// peakClient records the highest number of concurrent PutObject calls.
type peakClient struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (c *peakClient) PutObject(ctx context.Context, _ *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	cur := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		old := c.peak.Load()
		if cur <= old || c.peak.CompareAndSwap(old, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return &s3.PutObjectOutput{ETag: aws.String(`"etag"`)}, nil
}

func TestUploadUsesJobConfigConcurrency(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Upload.Bucket = "catalog"
	cfg.Concurrency.Max = 4
	cfg.Concurrency.Upload = 4
	client := &peakClient{}
	uploader := NewUploaderWithClient(cfg, logging.NewNop(), client)

	jobCfg := *cfg
	jobCfg.Concurrency.Upload = 1
	ec, _ := testsupport.NewExecContext(t, &jobCfg, "")

	bag := generatedBag(t, ec.Dirs.Generated, "red-01.png", "red-02.png", "blue-01.png", "blue-02.png")
	if _, err := uploader.Execute(context.Background(), ec, bag, nil).Get(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := client.peak.Load(); got != 1 {
		t.Fatalf("expected job config concurrency 1, peak was %d", got)
	}
}

func TestUploadDeniedBucketIsConfigurationError(t *testing.T) {
	s3srv := newFakeS3(t)
	cfg := testsupport.NewConfig(t, testsupport.WithUploadEndpoint(s3srv.server.URL, "denied"))
	uploader := NewUploader(cfg, logging.NewNop())
	ec, _ := testsupport.NewExecContext(t, cfg, "")

	result := uploader.Execute(context.Background(), ec, generatedBag(t, ec.Dirs.Generated, "red-01.png"), nil)
	if !errors.Is(result.Err, services.ErrExternalTool) {
		t.Fatalf("expected all-failed upload to be an external tool error, got %v", result.Err)
	}
	if !errors.Is(result.Err, services.ErrConfiguration) {
		t.Fatalf("expected access denied cause in chain, got %v", result.Err)
	}
}

type recordingClient struct {
	mu   sync.Mutex
	keys []string
}

func (c *recordingClient) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, aws.ToString(in.Key))
	return &s3.PutObjectOutput{ETag: aws.String(`"ok"`)}, nil
}

func TestUploadPartialFailureIsReported(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Upload.Bucket = "catalog"
	client := &recordingClient{}
	uploader := NewUploaderWithClient(cfg, logging.NewNop(), client)
	ec, _ := testsupport.NewExecContext(t, cfg, "")

	bag := generatedBag(t, ec.Dirs.Generated, "red-01.png", "missing-01.png")
	out, err := uploader.Execute(context.Background(), ec, bag, Options{Bucket: "override"}).Get()
	if err != nil {
		t.Fatalf("partial failure must not fail the stage: %v", err)
	}
	uploads, _ := stage.Get[[]artifact.Upload](out, iotype.Uploads)
	if len(uploads) != 1 || uploads[0].Bucket != "override" || uploads[0].URL != "s3://override/job-test/red/red-01.png" {
		t.Fatalf("unexpected uploads %+v", uploads)
	}
	report := out.Metadata()[StageID].(artifact.StageReport)
	if report.Failed != 1 || report.Failures[0].Item != "missing-01.png" || report.Failures[0].Kind != string(services.KindNotFound) {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(client.keys) != 1 {
		t.Fatalf("expected one PutObject call, got %v", client.keys)
	}
}

func TestUploadRequiresBucket(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	uploader := NewUploaderWithClient(cfg, logging.NewNop(), &recordingClient{})
	ec, _ := testsupport.NewExecContext(t, cfg, "")

	result := uploader.Execute(context.Background(), ec, generatedBag(t, ec.Dirs.Generated, "red-01.png"), nil)
	if !errors.Is(result.Err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", result.Err)
	}
	if uploader.HealthCheck(context.Background(), cfg).Ready {
		t.Fatal("expected unhealthy uploader without bucket")
	}
}

func TestObjectKey(t *testing.T) {
	img := artifact.GeneratedImage{Variant: "red", Path: "/tmp/generated/red-02.png"}
	cases := map[string]string{
		"":           "job-1/red/red-02.png",
		"catalog":    "catalog/job-1/red/red-02.png",
		"/nested/a/": "nested/a/job-1/red/red-02.png",
	}
	for prefix, want := range cases {
		if got := objectKey(strings.Trim(prefix, "/"), "job-1", img); got != want {
			t.Errorf("objectKey(%q) = %q, want %q", prefix, got, want)
		}
	}
}
