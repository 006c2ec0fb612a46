package gallery

import (
	"context"
	"errors"
	"image/color"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"reimagine/internal/models"
	"reimagine/internal/provider"
)

func TestDeleteRemovesRecordAndBothBlobs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.upload(t, "cat.png", "")
	env.provider.result = provider.ImageBytes(pngBytes(t, color.White))
	image, err := env.svc.Generate(ctx, GenerateInput{Filename: "cat.png"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	generated := image.GeneratedName()

	if err := env.svc.Delete(ctx, "cat.png"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.svc.Get(ctx, "cat.png"); KindOf(err) != KindNotFound {
		t.Fatalf("expected record to be gone, got %v", err)
	}
	if env.blobExists(t, models.NamespaceOriginals, "cat.png") {
		t.Fatal("original blob should be deleted")
	}
	if env.blobExists(t, models.NamespaceGenerated, generated) {
		t.Fatal("generated blob should be deleted")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.upload(t, "cat.png", "")

	if err := env.svc.Delete(ctx, "cat.png"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := env.svc.Delete(ctx, "cat.png"); err != nil {
		t.Fatalf("second delete should succeed: %v", err)
	}
}

func TestDeleteToleratesMissingBlobs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.upload(t, "cat.png", "")
	if _, err := env.records.SetGenerated(ctx, "cat.png", "generated_gone.png"); err != nil {
		t.Fatalf("set generated: %v", err)
	}
	if err := env.blobs.Delete(ctx, models.NamespaceOriginals, "cat.png"); err != nil {
		t.Fatalf("remove original: %v", err)
	}

	if err := env.svc.Delete(ctx, "cat.png"); err != nil {
		t.Fatalf("delete with missing blobs: %v", err)
	}
	if _, err := env.svc.Get(ctx, "cat.png"); KindOf(err) != KindNotFound {
		t.Fatalf("expected record to be gone, got %v", err)
	}
}

func TestDeleteAttemptsEveryStep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.upload(t, "cat.png", "")
	env.svc.blobs = &failingDeleteBlobs{BlobStore: env.blobs, err: errors.New("permission denied")}

	err := env.svc.Delete(ctx, "cat.png")
	if err == nil {
		t.Fatal("expected blob failure to be reported")
	}
	image, getErr := env.records.GetImage(ctx, "cat.png")
	if getErr != nil {
		t.Fatalf("get: %v", getErr)
	}
	if image != nil {
		t.Fatal("record delete must not be skipped when a blob delete fails")
	}
}

func TestDeleteRejectsInvalidFilename(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"..", ".", "a/b.png", "..\\x.png"} {
		if err := env.svc.Delete(context.Background(), name); KindOf(err) != KindBadRequest {
			t.Fatalf("%q: expected bad request, got %v", name, err)
		}
	}
}

func TestDeleteFinishesAfterCallerCancel(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, "cat.png", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := env.svc.Delete(ctx, "cat.png"); err != nil {
		t.Fatalf("delete with cancelled context: %v", err)
	}
	if env.blobExists(t, models.NamespaceOriginals, "cat.png") {
		t.Fatal("original blob should be deleted")
	}
	image, err := env.records.GetImage(context.Background(), "cat.png")
	if err != nil || image != nil {
		t.Fatalf("expected record to be gone, got %#v err=%v", image, err)
	}
}

func TestResetClearsEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.upload(t, "a.png", "")
	env.upload(t, "b.png", "")
	env.provider.result = provider.ImageBytes(pngBytes(t, color.White))
	generated, err := env.svc.Generate(ctx, GenerateInput{Filename: "a.png"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	result, err := env.svc.Reset(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if result.RecordsRemoved != 2 || result.OriginalsPurged != 2 || result.GeneratedPurged != 1 {
		t.Fatalf("unexpected reset result: %#v", result)
	}

	list, err := env.svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list after reset, got %d", len(list))
	}
	for _, key := range []string{"a.png", "b.png"} {
		if _, err := env.svc.FetchBlob(ctx, models.NamespaceOriginals, key); KindOf(err) != KindNotFound {
			t.Fatalf("expected %s to be gone, got %v", key, err)
		}
	}
	if _, err := env.svc.FetchBlob(ctx, models.NamespaceGenerated, generated.GeneratedName()); KindOf(err) != KindNotFound {
		t.Fatalf("expected generated blob to be gone, got %v", err)
	}

	env.upload(t, "a.png", "")
}

func TestResetRemovesOrphansWithoutRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.blobs.Put(ctx, models.NamespaceGenerated, "generated_orphan.png", bytesReader(pngBytes(t, color.White))); err != nil {
		t.Fatalf("put orphan: %v", err)
	}

	if _, err := env.svc.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if env.blobCount(t, models.NamespaceGenerated) != 0 {
		t.Fatal("reset must purge blobs regardless of records")
	}
}

func TestSweepOrphans(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.upload(t, "kept.png", "")
	if _, err := env.blobs.Put(ctx, models.NamespaceGenerated, "generated_orphan.png", bytesReader([]byte("x"))); err != nil {
		t.Fatalf("put orphan: %v", err)
	}
	if _, err := env.blobs.Put(ctx, models.NamespaceOriginals, "stray.png", bytesReader([]byte("y"))); err != nil {
		t.Fatalf("put stray: %v", err)
	}

	dry, err := env.svc.SweepOrphans(ctx, false, 0)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !dry.DryRun || dry.CandidateCount != 2 || dry.DeletedCount != 0 {
		t.Fatalf("unexpected dry run: %#v", dry)
	}
	if !env.blobExists(t, models.NamespaceGenerated, "generated_orphan.png") {
		t.Fatal("dry run must not delete")
	}

	young, err := env.svc.SweepOrphans(ctx, true, time.Hour)
	if err != nil {
		t.Fatalf("sweep with min age: %v", err)
	}
	if young.CandidateCount != 0 {
		t.Fatalf("recent blobs should be skipped, got %#v", young)
	}

	applied, err := env.svc.SweepOrphans(ctx, true, 0)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied.DeletedCount != 2 || applied.ReclaimedBytes != 2 {
		t.Fatalf("unexpected sweep result: %#v", applied)
	}
	if !env.blobExists(t, models.NamespaceOriginals, "kept.png") {
		t.Fatal("referenced blob must survive the sweep")
	}
	if got := testutil.ToFloat64(env.metrics.OrphansDeleted); got != 2 {
		t.Fatalf("expected orphan metric 2, got %v", got)
	}
}
