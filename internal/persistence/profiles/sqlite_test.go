package profiles

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"tiletown.ai/internal/sim/world"
)

func TestStore_AvatarRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "profiles.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	in := Avatar{
		ID: "avatar-1", Name: "Ada", Color: "#aa33cc", Bio: "likes karaoke",
		Kind: "ROBOT", X: 12, Y: 7, FacingX: 0, FacingY: 1,
	}
	if err := s.UpsertAvatar(in); err != nil {
		t.Fatalf("UpsertAvatar: %v", err)
	}

	got, ok, err := s.GetAvatar("avatar-1")
	if err != nil || !ok {
		t.Fatalf("GetAvatar: ok=%v err=%v", ok, err)
	}
	if got.Name != "Ada" || got.Bio != "likes karaoke" || got.X != 12 || got.Y != 7 {
		t.Fatalf("avatar mismatch: %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatalf("updated_at not recorded")
	}

	if _, ok, _ := s.GetAvatar("nope"); ok {
		t.Fatalf("unknown id should not resolve")
	}

	if err := s.DeleteAvatar("avatar-1"); err != nil {
		t.Fatalf("DeleteAvatar: %v", err)
	}
	if _, ok, _ := s.GetAvatar("avatar-1"); ok {
		t.Fatalf("avatar survived delete")
	}
}

func TestStore_PositionSinkPersistsBatches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.PositionSink() <- []world.PositionRow{
		{EntityID: "avatar-1", Kind: "ROBOT", Name: "Ada", X: 3, Y: 4, FacingY: 1},
		{EntityID: "avatar-2", Kind: "PLAYER", Name: "Lin", X: 9, Y: 9, FacingX: 1},
		{EntityID: "wall-1", Kind: "WALL", Name: "", X: 0, Y: 0},
	}
	// Close drains the sink before shutting the db down.
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var x, y int
	row := db.QueryRow(`SELECT x,y FROM avatars WHERE id='avatar-1'`)
	if err := row.Scan(&x, &y); err != nil {
		t.Fatalf("Scan avatar-1: %v", err)
	}
	if x != 3 || y != 4 {
		t.Fatalf("avatar-1 position: got (%d,%d)", x, y)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM avatars`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	// Walls are static scenery; the store keeps avatars only.
	if count != 2 {
		t.Fatalf("rows: got %d want 2", count)
	}
}

func TestStore_ListAvatarsOrdered(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "profiles.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	for _, id := range []string{"b", "a", "c"} {
		if err := s.UpsertAvatar(Avatar{ID: id, Name: id, Kind: "ROBOT"}); err != nil {
			t.Fatalf("UpsertAvatar(%s): %v", id, err)
		}
	}
	got, err := s.ListAvatars()
	if err != nil {
		t.Fatalf("ListAvatars: %v", err)
	}
	if len(got) != 3 || got[0].ID != "a" || got[1].ID != "b" || got[2].ID != "c" {
		t.Fatalf("order mismatch: %+v", got)
	}
}
