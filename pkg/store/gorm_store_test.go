package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"

	"github.com/Sibusisongondo/Tdone/pkg/domain"
)

func newTestGormStore(t *testing.T) *GormStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "magazines.db")
	s, err := NewGormStore("", WithDialector(sqlite.Open(dsn)))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedMagazine(id, userID, title, category string, created time.Time) domain.Magazine {
	return domain.Magazine{
		ID:               id,
		UserID:           userID,
		Title:            title,
		Description:      "issue " + id,
		Category:         category,
		FileName:         id + ".pdf",
		FileSize:         1024,
		FileKey:          "magazines/" + userID + "/" + id + ".pdf",
		PageCount:        4,
		IsDownloadable:   false,
		IsReadableOnline: true,
		CreatedAt:        created,
	}
}

func TestNewGormStoreRequiresDSN(t *testing.T) {
	if _, err := NewGormStore(" "); err == nil {
		t.Fatalf("expected empty dsn to fail")
	}
}

func TestGormStoreSaveAndGetJoinsArtist(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()
	if _, err := s.EnsureProfile(ctx, domain.Profile{ID: "u1", ArtistName: "Ada Ink", SocialLinks: map[string]string{"instagram": "@ada"}}); err != nil {
		t.Fatalf("ensure profile: %v", err)
	}
	want := seedMagazine("m1", "u1", "Spring", "Design", time.Now().UTC())
	if err := s.SaveMagazine(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := s.GetMagazine(ctx, "m1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.ArtistName != "Ada Ink" || got.Title != "Spring" || got.PageCount != 4 {
		t.Fatalf("unexpected magazine: %+v", got)
	}
	if got.IsDownloadable || !got.IsReadableOnline {
		t.Fatalf("flags not persisted: %+v", got)
	}

	if _, ok, err := s.GetMagazine(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected missing magazine, ok=%v err=%v", ok, err)
	}
}

func TestGormStoreListFilters(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, m := range []domain.Magazine{
		seedMagazine("m1", "u1", "Spring Looks", "Design", base),
		seedMagazine("m2", "u2", "Market Watch", "Business", base.Add(time.Hour)),
		seedMagazine("m3", "u1", "100% Spring", "Design", base.Add(2*time.Hour)),
	} {
		if err := s.SaveMagazine(ctx, m); err != nil {
			t.Fatalf("save %s: %v", m.ID, err)
		}
	}

	all, err := s.ListMagazines(ctx, MagazineFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if ids := magazineIDs(all); ids != "m3,m2,m1" {
		t.Fatalf("expected newest first, got %s", ids)
	}

	cases := []struct {
		name   string
		filter MagazineFilter
		want   string
	}{
		{"owner", MagazineFilter{UserID: "u1"}, "m3,m1"},
		{"category", MagazineFilter{Category: "Business"}, "m2"},
		{"query case insensitive", MagazineFilter{Query: "SPRING"}, "m3,m1"},
		{"query literal percent", MagazineFilter{Query: "100%"}, "m3"},
		{"limit offset", MagazineFilter{Limit: 1, Offset: 1}, "m2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.ListMagazines(ctx, tc.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if ids := magazineIDs(got); ids != tc.want {
				t.Fatalf("got %s, want %s", ids, tc.want)
			}
		})
	}
}

func TestGormStoreDeleteRollsBackOnHookError(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()
	if err := s.SaveMagazine(ctx, seedMagazine("m1", "u1", "Spring", "Design", time.Now().UTC())); err != nil {
		t.Fatalf("save: %v", err)
	}

	hookErr := errors.New("object delete failed")
	if err := s.DeleteMagazine(ctx, "m1", func() error { return hookErr }); !errors.Is(err, hookErr) {
		t.Fatalf("expected hook error, got %v", err)
	}
	if _, ok, _ := s.GetMagazine(ctx, "m1"); !ok {
		t.Fatalf("row must survive a failed hook")
	}

	called := false
	if err := s.DeleteMagazine(ctx, "m1", func() error { called = true; return nil }); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !called {
		t.Fatalf("expected hook to run")
	}
	if _, ok, _ := s.GetMagazine(ctx, "m1"); ok {
		t.Fatalf("row should be gone")
	}
	if err := s.DeleteMagazine(ctx, "m1", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGormStoreCountsAndProfiles(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	for _, m := range []domain.Magazine{
		seedMagazine("m1", "u1", "A", "Design", now),
		seedMagazine("m2", "u1", "B", "Design", now),
		seedMagazine("m3", "u2", "C", "Travel", now),
	} {
		if err := s.SaveMagazine(ctx, m); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	first, err := s.EnsureProfile(ctx, domain.Profile{ID: "u1", ArtistName: "First"})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	again, err := s.EnsureProfile(ctx, domain.Profile{ID: "u1", ArtistName: "Renamed"})
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if again.ArtistName != "First" || !again.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("existing profile must not be overwritten: %+v", again)
	}

	if n, _ := s.CountMagazines(ctx, CountFilter{}); n != 3 {
		t.Fatalf("magazines = %d", n)
	}
	if n, _ := s.CountCategories(ctx, CountFilter{}); n != 2 {
		t.Fatalf("categories = %d", n)
	}
	if n, _ := s.CountProfiles(ctx); n != 1 {
		t.Fatalf("profiles = %d", n)
	}
	if _, ok, err := s.GetProfile(ctx, "u2"); ok || err != nil {
		t.Fatalf("expected no profile for u2, ok=%v err=%v", ok, err)
	}
}

func magazineIDs(mags []domain.Magazine) string {
	out := ""
	for i, m := range mags {
		if i > 0 {
			out += ","
		}
		out += m.ID
	}
	return out
}

func TestGormStoreCountsPerOwnerAndSince(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()
	monthStart := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, m := range []domain.Magazine{
		seedMagazine("m1", "u1", "May", "Design", monthStart.Add(-time.Hour)),
		seedMagazine("m2", "u1", "June", "Travel", monthStart),
		seedMagazine("m3", "u1", "Late June", "Travel", monthStart.Add(48*time.Hour)),
		seedMagazine("m4", "u2", "Other", "Science", monthStart.Add(time.Hour)),
	} {
		if err := s.SaveMagazine(ctx, m); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	tests := []struct {
		name       string
		filter     CountFilter
		magazines  int
		categories int
	}{
		{"owner", CountFilter{UserID: "u1"}, 3, 2},
		{"owner this month", CountFilter{UserID: "u1", CreatedSince: monthStart}, 2, 1},
		{"everyone this month", CountFilter{CreatedSince: monthStart}, 3, 2},
		{"unknown owner", CountFilter{UserID: "ghost"}, 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if n, err := s.CountMagazines(ctx, tc.filter); err != nil || n != tc.magazines {
				t.Fatalf("magazines = %d, %v, want %d", n, err, tc.magazines)
			}
			if n, err := s.CountCategories(ctx, tc.filter); err != nil || n != tc.categories {
				t.Fatalf("categories = %d, %v, want %d", n, err, tc.categories)
			}
		})
	}
}
