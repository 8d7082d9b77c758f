package services_test

import (
	"context"
	"testing"

	"hackercast/internal/services"
)

func TestContextCarriesPipelineIdentity(t *testing.T) {
	ctx := services.WithRequestID(
		services.WithStage(
			services.WithItemID(
				services.WithBatchID(context.Background(), "20260825"),
				42),
			"extract"),
		"req-123")

	batch, ok := services.BatchIDFromContext(ctx)
	if !ok {
		t.Fatal("batch id missing")
	}
	if batch != "20260825" {
		t.Errorf("batch id = %q", batch)
	}

	id, ok := services.ItemIDFromContext(ctx)
	if !ok {
		t.Fatal("item id missing")
	}
	if id != 42 {
		t.Errorf("item id = %d", id)
	}

	stage, ok := services.StageFromContext(ctx)
	if !ok {
		t.Fatal("stage missing")
	}
	if stage != "extract" {
		t.Errorf("stage = %q", stage)
	}

	rid, ok := services.RequestIDFromContext(ctx)
	if !ok {
		t.Fatal("request id missing")
	}
	if rid != "req-123" {
		t.Errorf("request id = %q", rid)
	}
}

func TestBlankValuesLeaveContextUntouched(t *testing.T) {
	ctx := services.WithStage(context.Background(), "")
	ctx = services.WithBatchID(ctx, "")

	if _, ok := services.StageFromContext(ctx); ok {
		t.Error("blank stage should not be stored")
	}
	if _, ok := services.BatchIDFromContext(ctx); ok {
		t.Error("blank batch id should not be stored")
	}
}
