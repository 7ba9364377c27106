// Package ffmpeg wraps the ffmpeg CLI for frame extraction. Command
// execution goes through an Executor so tests can substitute canned output.
package ffmpeg
