package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"shotline/internal/artifact"
	"shotline/internal/config"
	"shotline/internal/fileutil"
	"shotline/internal/iotype"
	"shotline/internal/logging"
	"shotline/internal/services"
	"shotline/internal/stage"
)

// StageID identifies the HTTP download stage.
const StageID = "download"

const (
	defaultFileName = "source.mp4"
	retryBaseDelay  = 2 * time.Second
)

// Options configures one download.
type Options struct {
	// URL overrides job.Source.
	URL      string `yaml:"url"`
	MaxBytes int64  `yaml:"max_bytes"`
	Retries  int    `yaml:"retries"`
	FileName string `yaml:"file_name"`
}

// StageID implements stage.Options.
func (Options) StageID() string { return StageID }

// Downloader fetches source videos over HTTP.
type Downloader struct {
	cfg    *config.Config
	client *http.Client
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
}

// NewDownloader constructs the download stage implementation. A nil client
// uses one with the configured timeout.
func NewDownloader(cfg *config.Config, client *http.Client, logger *slog.Logger) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: time.Duration(cfg.Download.TimeoutSeconds) * time.Second}
	}
	return &Downloader{
		cfg:    cfg,
		client: client,
		logger: logging.NewComponentLogger(logger, "download"),
		sleep:  sleepContext,
	}
}

// DefaultOptions derives options from configuration.
func (d *Downloader) DefaultOptions() Options {
	return Options{MaxBytes: d.cfg.Download.MaxBytes, Retries: d.cfg.Download.Retries}
}

// Stage describes the download stage.
func (d *Downloader) Stage() stage.Stage {
	defaults := d.DefaultOptions()
	return stage.Stage{
		ID:             StageID,
		DisplayName:    "Download",
		Status:         "downloading",
		Description:    "Fetch the source video over HTTP(S)",
		Produces:       iotype.NewSet(iotype.Video),
		Execute:        d.Execute,
		DefaultOptions: defaults,
		DecodeOptions:  stage.DecodeInto(defaults),
	}
}

// Execute downloads the source video into the job input directory.
func (d *Downloader) Execute(ctx context.Context, ec *stage.ExecContext, _ stage.Bag, raw stage.Options) stage.Result {
	opts, err := stage.OptionsAs(raw, d.DefaultOptions())
	if err != nil {
		return stage.Fail(err)
	}
	source := strings.TrimSpace(opts.URL)
	if source == "" {
		source = strings.TrimSpace(ec.Job.Source)
	}
	parsed, err := url.Parse(source)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return stage.Fail(services.Wrap(services.ErrValidation, StageID, "parse url",
			fmt.Sprintf("source %q is not an http(s) url", source), err))
	}
	if strings.TrimSpace(ec.Dirs.Input) == "" {
		return stage.Fail(services.Wrap(services.ErrConfiguration, StageID, "prepare", "job input directory not set", nil))
	}

	name := opts.FileName
	if name == "" {
		name = fileNameFromURL(parsed)
	}
	dst := filepath.Join(ec.Dirs.Input, filepath.Base(name))

	logger := ec.Log()
	var video artifact.Video
	attempts := max(opts.Retries, 0) + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		video, err = d.fetch(ctx, ec, parsed.String(), dst, opts.MaxBytes)
		if err == nil {
			break
		}
		if attempt == attempts || !services.Retryable(err) || ctx.Err() != nil {
			return stage.Fail(err)
		}
		delay := retryBaseDelay * time.Duration(1<<(attempt-1))
		logger.Warn("download attempt failed; retrying",
			logging.Int("attempt", attempt),
			logging.Duration("retry_in", delay),
			logging.Error(err),
			logging.String(logging.FieldEventType, "download_retry"),
			logging.String(logging.FieldErrorHint, "check network connectivity and the source url"),
		)
		if sleepErr := d.sleep(ctx, delay); sleepErr != nil {
			return stage.Fail(sleepErr)
		}
	}

	logger.Info("source video downloaded",
		logging.String("source_url", video.SourceURL),
		logging.String("video_path", video.Path),
		logging.Int64("size_bytes", video.SizeBytes),
	)
	out := stage.Bag{}
	out.Set(iotype.Video, video)
	out.WithMetadata("source_url", video.SourceURL)
	return stage.Succeed(out)
}

func (d *Downloader) fetch(ctx context.Context, ec *stage.ExecContext, source, dst string, limit int64) (artifact.Video, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return artifact.Video{}, services.Wrap(services.ErrValidation, StageID, "new request", "", err)
	}
	if ua := strings.TrimSpace(d.cfg.Download.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return artifact.Video{}, ctx.Err()
		}
		return artifact.Video{}, services.Wrap(services.ErrTransient, StageID, "get", source, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return artifact.Video{}, services.Wrap(services.ErrTransient, StageID, "get", fmt.Sprintf("http %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return artifact.Video{}, services.Wrap(services.ErrNotFound, StageID, "get", fmt.Sprintf("http %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return artifact.Video{}, services.Wrap(services.ErrConfiguration, StageID, "get", fmt.Sprintf("http %d", resp.StatusCode), nil)
	case resp.StatusCode >= http.StatusMultipleChoices:
		return artifact.Video{}, services.Wrap(services.ErrValidation, StageID, "get", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	if limit > 0 && resp.ContentLength > limit {
		return artifact.Video{}, services.Wrap(services.ErrValidation, StageID, "get",
			fmt.Sprintf("content length %d exceeds limit %d", resp.ContentLength, limit), nil)
	}

	body := io.Reader(resp.Body)
	if resp.ContentLength > 0 {
		body = &progressReader{r: resp.Body, total: resp.ContentLength, report: ec.Report}
	}
	written, err := fileutil.WriteAtomic(dst, body, limit)
	if err != nil {
		switch {
		case errors.Is(err, fileutil.ErrTooLarge):
			return artifact.Video{}, services.Wrap(services.ErrValidation, StageID, "write", "", err)
		case ctx.Err() != nil:
			return artifact.Video{}, ctx.Err()
		default:
			return artifact.Video{}, services.Wrap(services.ErrTransient, StageID, "write", dst, err)
		}
	}
	if written == 0 {
		_ = os.Remove(dst)
		return artifact.Video{}, services.Wrap(services.ErrValidation, StageID, "write", "empty response body", nil)
	}
	ec.Report(100, "Download complete")

	contentType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return artifact.Video{
		Path:        dst,
		SourceURL:   source,
		SizeBytes:   written,
		ContentType: contentType,
	}, nil
}

func fileNameFromURL(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return defaultFileName
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	base = sanitizeFileName(base)
	if base == "" {
		return defaultFileName
	}
	if filepath.Ext(base) == "" {
		base += ".mp4"
	}
	return base
}

func sanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "._")
}

// progressReader reports download progress in 5% steps.
type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	reported int
	report   func(float64, string)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.read += int64(n)
	percent := int(p.read * 100 / p.total)
	if percent >= p.reported+5 && percent <= 100 {
		p.reported = percent - percent%5
		p.report(float64(p.reported), fmt.Sprintf("Downloaded %d%%", p.reported))
	}
	return n, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
