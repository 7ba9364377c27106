package download

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"shotline/internal/artifact"
	"shotline/internal/fileutil"
	"shotline/internal/iotype"
	"shotline/internal/logging"
	"shotline/internal/services"
	"shotline/internal/stage"
)

// LocalStageID identifies the local import stage.
const LocalStageID = "import-local"

// LocalOptions configures a local import.
type LocalOptions struct {
	// Path overrides job.Source.
	Path string `yaml:"path"`
}

// StageID implements stage.Options.
func (LocalOptions) StageID() string { return LocalStageID }

// Importer copies a video that is already on disk into the job workspace.
type Importer struct {
	logger *slog.Logger
}

// NewImporter constructs the import-local stage implementation.
func NewImporter(logger *slog.Logger) *Importer {
	return &Importer{logger: logging.NewComponentLogger(logger, "import-local")}
}

// Stage describes the import-local stage.
func (i *Importer) Stage() stage.Stage {
	return stage.Stage{
		ID:             LocalStageID,
		DisplayName:    "Import Local",
		Status:         "importing",
		Description:    "Copy a local video file into the job workspace",
		Produces:       iotype.NewSet(iotype.Video),
		Execute:        i.Execute,
		DefaultOptions: LocalOptions{},
		DecodeOptions:  stage.DecodeInto(LocalOptions{}),
	}
}

// Execute copies the source file and records its digest.
func (i *Importer) Execute(ctx context.Context, ec *stage.ExecContext, _ stage.Bag, raw stage.Options) stage.Result {
	opts, err := stage.OptionsAs(raw, LocalOptions{})
	if err != nil {
		return stage.Fail(err)
	}
	source := strings.TrimSpace(opts.Path)
	if source == "" {
		source = strings.TrimSpace(ec.Job.Source)
	}
	source = localPath(source)
	if source == "" {
		return stage.Fail(services.Wrap(services.ErrValidation, LocalStageID, "resolve source", "no source path", nil))
	}
	info, err := os.Stat(source)
	if err != nil {
		if os.IsNotExist(err) {
			return stage.Fail(services.Wrap(services.ErrNotFound, LocalStageID, "stat source", source, err))
		}
		return stage.Fail(services.Wrap(services.ErrValidation, LocalStageID, "stat source", source, err))
	}
	if info.IsDir() {
		return stage.Fail(services.Wrap(services.ErrValidation, LocalStageID, "stat source", fmt.Sprintf("%s is a directory", source), nil))
	}
	if strings.TrimSpace(ec.Dirs.Input) == "" {
		return stage.Fail(services.Wrap(services.ErrConfiguration, LocalStageID, "prepare", "job input directory not set", nil))
	}
	if err := ctx.Err(); err != nil {
		return stage.Fail(err)
	}

	dst := filepath.Join(ec.Dirs.Input, filepath.Base(source))
	size, digest, err := fileutil.CopyFileVerified(source, dst)
	if err != nil {
		return stage.Fail(services.Wrap(services.ErrExternalTool, LocalStageID, "copy", source, err))
	}
	ec.Report(100, "Import complete")
	ec.Log().Info("source video imported",
		logging.String("source_path", source),
		logging.String("video_path", dst),
		logging.Int64("size_bytes", size),
	)

	out := stage.Bag{}
	out.Set(iotype.Video, artifact.Video{Path: dst, SizeBytes: size})
	out.WithMetadata("source_path", source)
	out.WithMetadata("source_sha256", digest)
	return stage.Succeed(out)
}

// localPath accepts plain paths and file:// URLs.
func localPath(source string) string {
	if strings.HasPrefix(source, "file://") {
		if u, err := url.Parse(source); err == nil {
			return filepath.Clean(u.Path)
		}
	}
	if source == "" {
		return ""
	}
	return filepath.Clean(source)
}
