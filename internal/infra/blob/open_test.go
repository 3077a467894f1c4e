package blob

import (
	"context"
	"testing"

	"talentcore/internal/infra/blob/core"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, Config{})
	if err != nil || store != nil {
		t.Fatalf("empty driver should disable archiving, got %v %v", store, err)
	}
	store, err = Open(ctx, Config{Driver: "memory"})
	if err != nil || store.Driver() != core.DriverMemory {
		t.Fatalf("memory driver: %v %v", store, err)
	}
	store, err = Open(ctx, Config{Driver: "fs", FSRoot: t.TempDir()})
	if err != nil || store.Driver() != core.DriverFilesystem {
		t.Fatalf("fs driver: %v %v", store, err)
	}
	if _, err := Open(ctx, Config{Driver: "s3"}); err == nil {
		t.Fatalf("s3 without bucket should fail")
	}
	if _, err := Open(ctx, Config{Driver: "tape"}); err == nil {
		t.Fatalf("unknown driver should fail")
	}
}
