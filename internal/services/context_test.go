package services_test

import (
	"context"
	"testing"

	"shotline/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, "job-42")
	ctx = services.WithStage(ctx, "extract-frames")
	ctx = services.WithStack(ctx, "product-images")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != "job-42" {
		t.Fatalf("unexpected job id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "extract-frames" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if stack, ok := services.StackFromContext(ctx); !ok || stack != "product-images" {
		t.Fatalf("unexpected stack: %v %v", stack, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.JobIDFromContext(services.WithJobID(ctx, "")); ok {
		t.Fatal("expected no job id value")
	}
}
