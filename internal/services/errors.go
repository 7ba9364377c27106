package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrSwapIncompatible = errors.New("swap incompatible")
	ErrStageFailed      = errors.New("stage failed")
	ErrItemFailed       = errors.New("item failed")
	ErrSkipped          = errors.New("skipped")
	ErrExternalTool     = errors.New("external tool error")
	ErrConfiguration    = errors.New("configuration error")
	ErrNotFound         = errors.New("not found")
	ErrTimeout          = errors.New("timeout")
	ErrTransient        = errors.New("transient failure")
)

// ErrorKind is the persisted classification of a failure.
type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindValidation    ErrorKind = "validation"
	KindSwap          ErrorKind = "swap_incompatible"
	KindCancelled     ErrorKind = "cancelled"
	KindTimeout       ErrorKind = "timeout"
	KindConfiguration ErrorKind = "configuration"
	KindNotFound      ErrorKind = "not_found"
	KindExternalTool  ErrorKind = "external_tool"
	KindSkipped       ErrorKind = "skipped"
	KindItem          ErrorKind = "item_failed"
	KindStage         ErrorKind = "stage_failed"
	KindTransient     ErrorKind = "transient"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf classifies err. The most specific marker wins: a stage failure
// caused by a timeout reports KindTimeout, not KindStage.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrSwapIncompatible):
		return KindSwap
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrExternalTool):
		return KindExternalTool
	case errors.Is(err, ErrSkipped):
		return KindSkipped
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrItemFailed):
		return KindItem
	default:
		return KindStage
	}
}

// Retryable reports whether a failure is worth retrying by the caller.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindTimeout, KindExternalTool:
		return true
	default:
		return false
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
