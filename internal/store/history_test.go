package store

import (
	"context"
	"testing"
	"time"
)

func TestRecordDeliveryAndStats(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []Delivery{
		{PostID: "p1", Destination: "ch1", Part: "text", OK: true, At: now},
		{PostID: "p1", Destination: "ch1", Part: "video", OK: false, Error: "upload failed", At: now.Add(time.Second)},
		{PostID: "p1", Destination: "ch1", Part: "pdf", OK: true, At: now.Add(2 * time.Second)},
		{PostID: "p2", Destination: "ch1", Part: "text", OK: true, At: now.Add(time.Minute)},
	}
	for _, d := range records {
		if err := st.RecordDelivery(ctx, d); err != nil {
			t.Fatalf("record delivery: %v", err)
		}
	}

	stats, err := st.GetPartStats(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("part stats: %v", err)
	}
	if len(stats) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(stats))
	}

	byPart := make(map[string]PartStats)
	for _, ps := range stats {
		byPart[ps.Part] = ps
	}
	if got := byPart["text"]; got.Total != 2 || got.OK != 2 || got.Failed != 0 {
		t.Errorf("text stats = %+v", got)
	}
	if got := byPart["text"].Last; !got.Equal(now.Add(time.Minute)) {
		t.Errorf("text last = %v", got)
	}
	if got := byPart["video"]; got.Total != 1 || got.Failed != 1 {
		t.Errorf("video stats = %+v", got)
	}

	failures, err := st.RecentFailures(ctx, 5)
	if err != nil {
		t.Fatalf("recent failures: %v", err)
	}
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(failures))
	}
	if f := failures[0]; f.PostID != "p1" || f.Part != "video" || f.Error != "upload failed" || f.OK {
		t.Errorf("failure = %+v", f)
	}
}

func TestRecordDeliveryValidation(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	if err := st.RecordDelivery(ctx, Delivery{Part: "text"}); err == nil {
		t.Error("expected error for missing post id")
	}
	if err := st.RecordDelivery(ctx, Delivery{PostID: "p"}); err == nil {
		t.Error("expected error for missing part")
	}
}

func TestRecordDeliveryDefaultsTime(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	before := time.Now().Add(-time.Second)
	if err := st.RecordDelivery(ctx, Delivery{PostID: "p", Destination: "d", Part: "text", OK: true}); err != nil {
		t.Fatal(err)
	}
	stats, err := st.GetPartStats(ctx, before)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 1 || stats[0].Total != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestPruneOld(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -40)
	fresh := time.Now().Add(-time.Hour)
	for _, d := range []Delivery{
		{PostID: "old", Destination: "d", Part: "text", OK: true, At: old},
		{PostID: "fresh", Destination: "d", Part: "text", OK: true, At: fresh},
	} {
		if err := st.RecordDelivery(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	n, err := st.PruneOld(ctx, 30)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}

	var count int
	if err := st.db.QueryRow("SELECT COUNT(*) FROM deliveries").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("remaining = %d, want 1", count)
	}
}

func TestPruneOldDisabled(t *testing.T) {
	st, _ := openTestStore(t)
	n, err := st.PruneOld(context.Background(), 0)
	if err != nil || n != 0 {
		t.Fatalf("PruneOld(0) = %d, %v", n, err)
	}
}
