package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sibusisongondo/Tdone/internal/viewer"
	"github.com/Sibusisongondo/Tdone/pkg/domain"
)

func TestMemoryStoreListMatchesGormOrdering(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	_ = s.SaveMagazine(ctx, seedMagazine("m1", "u1", "Spring Looks", "Design", base))
	_ = s.SaveMagazine(ctx, seedMagazine("m2", "u2", "Market Watch", "Business", base.Add(time.Hour)))
	_ = s.SaveMagazine(ctx, seedMagazine("m3", "u1", "Late Spring", "Design", base.Add(2*time.Hour)))
	_, _ = s.EnsureProfile(ctx, domain.Profile{ID: "u1", ArtistName: "Ada"})

	got, _ := s.ListMagazines(ctx, MagazineFilter{Query: "spring"})
	if ids := magazineIDs(got); ids != "m3,m1" {
		t.Fatalf("got %s", ids)
	}
	if got[0].ArtistName != "Ada" {
		t.Fatalf("expected artist name, got %q", got[0].ArtistName)
	}
	got, _ = s.ListMagazines(ctx, MagazineFilter{Offset: 5})
	if len(got) != 0 {
		t.Fatalf("expected empty page, got %d", len(got))
	}
	if n, _ := s.CountCategories(ctx, CountFilter{}); n != 2 {
		t.Fatalf("categories = %d", n)
	}
	if n, _ := s.CountMagazines(ctx, CountFilter{UserID: "u1", CreatedSince: base.Add(time.Hour)}); n != 1 {
		t.Fatalf("u1 magazines since = %d, want 1", n)
	}
	if n, _ := s.CountCategories(ctx, CountFilter{UserID: "u2"}); n != 1 {
		t.Fatalf("u2 categories = %d, want 1", n)
	}
}

func TestMemoryStoreDeleteKeepsRecordOnHookError(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.SaveMagazine(ctx, seedMagazine("m1", "u1", "A", "Design", time.Now()))

	if err := s.DeleteMagazine(ctx, "m1", func() error { return errors.New("boom") }); err == nil {
		t.Fatalf("expected hook error")
	}
	if _, ok, _ := s.GetMagazine(ctx, "m1"); !ok {
		t.Fatalf("record should survive")
	}
	if err := s.DeleteMagazine(ctx, "m1", nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteMagazine(ctx, "m1", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreViewerState(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if _, ok, _ := s.LoadViewerState(ctx, "u1", "m1"); ok {
		t.Fatalf("expected no state")
	}
	want := viewer.State{Page: 3, NumPages: 9, Scale: 1.5}
	_ = s.SaveViewerState(ctx, "u1", "m1", want)
	got, ok, _ := s.LoadViewerState(ctx, "u1", "m1")
	if !ok || got != want {
		t.Fatalf("got %+v ok=%v", got, ok)
	}
	if _, ok, _ := s.LoadViewerState(ctx, "u2", "m1"); ok {
		t.Fatalf("state must be per reader")
	}
}
