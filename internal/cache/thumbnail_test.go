package cache

import (
	"testing"

	"demosync/internal/demo"
)

func TestStore_SetAndGetThumbnail(t *testing.T) {
	store, _, _ := newTestStore(t)

	overview := demo.Overview{
		Headline:       "Q3 launch",
		ThumbnailImage: "data:image/png;base64,xyz",
		GradientID:     "sf-brand",
		ImageOffset:    demo.Offset{X: 25, Y: 75},
		// Poster fields are not part of the thumbnail subset.
		PosterName: "Sam",
	}
	if err := store.SetThumbnail("doc-1", overview); err != nil {
		t.Fatalf("SetThumbnail() error: %v", err)
	}

	got, ok := store.GetThumbnail("doc-1")
	if !ok {
		t.Fatal("GetThumbnail() ok = false, want true")
	}
	want := Thumbnail{
		Headline:       "Q3 launch",
		ThumbnailImage: "data:image/png;base64,xyz",
		GradientID:     "sf-brand",
		ImageOffset:    demo.Offset{X: 25, Y: 75},
	}
	if *got != want {
		t.Errorf("GetThumbnail() = %+v, want %+v", *got, want)
	}
}

func TestStore_GetThumbnailAbsent(t *testing.T) {
	store, _, _ := newTestStore(t)

	if _, ok := store.GetThumbnail("absent"); ok {
		t.Error("GetThumbnail() ok = true for absent id, want false")
	}
}

func TestStore_GetThumbnailCorrupt(t *testing.T) {
	store, _, _ := newTestStore(t)

	if _, err := store.db.Exec(`INSERT INTO thumbnails (id, data) VALUES (?, ?)`, "doc-1", "{broken"); err != nil {
		t.Fatalf("seeding corrupt thumbnail: %v", err)
	}

	if _, ok := store.GetThumbnail("doc-1"); ok {
		t.Error("GetThumbnail() ok = true for corrupt entry, want false")
	}
}

func TestStore_ClearThumbnails(t *testing.T) {
	store, _, _ := newTestStore(t)

	for _, id := range []string{"a", "b"} {
		if err := store.SetThumbnail(id, demo.Overview{Headline: id}); err != nil {
			t.Fatalf("SetThumbnail(%s) error: %v", id, err)
		}
	}

	if err := store.ClearThumbnails(); err != nil {
		t.Fatalf("ClearThumbnails() error: %v", err)
	}
	for _, id := range []string{"a", "b"} {
		if _, ok := store.GetThumbnail(id); ok {
			t.Errorf("thumbnail %q survived ClearThumbnails", id)
		}
	}
}
