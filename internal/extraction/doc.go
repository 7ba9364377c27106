// Package extraction implements the extract-frames stage: ffprobe reads the
// source duration, then ffmpeg samples frames at a fixed rate into the job's
// frames directory. The stage produces both the raw image paths and Frame
// records carrying each frame's timestamp.
package extraction
