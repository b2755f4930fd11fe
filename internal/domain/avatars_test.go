package domain

import "testing"

func TestAvatarPalette(t *testing.T) {
	all := Avatars()
	if len(all) != 16 {
		t.Fatalf("expected 16 avatars, got %d", len(all))
	}
	seen := make(map[string]bool)
	for _, a := range all {
		if seen[a.ID] {
			t.Fatalf("duplicate avatar %q", a.ID)
		}
		seen[a.ID] = true
		if got, ok := AvatarByID(a.ID); !ok || got != a {
			t.Fatalf("lookup %q failed", a.ID)
		}
	}
	if _, ok := AvatarByID("grinch"); ok {
		t.Fatalf("expected unknown avatar lookup to fail")
	}

	all[0].Name = "changed"
	if Avatars()[0].Name == "changed" {
		t.Fatalf("Avatars must return a copy")
	}
}

func TestPickAvatarSkipsUsed(t *testing.T) {
	all := Avatars()
	used := make([]string, 0, len(all)-1)
	for _, a := range all[:len(all)-1] {
		used = append(used, a.ID)
	}

	got := PickAvatar(used, func(n int) int {
		if n != 1 {
			t.Fatalf("expected one free avatar, got pool of %d", n)
		}
		return 0
	})
	if got.ID != all[len(all)-1].ID {
		t.Fatalf("expected the only free avatar, got %q", got.ID)
	}
}

func TestPickAvatarFallsBackToFullPalette(t *testing.T) {
	var used []string
	for _, a := range Avatars() {
		used = append(used, a.ID)
	}
	var pool int
	got := PickAvatar(used, func(n int) int { pool = n; return n - 1 })
	if pool != 16 {
		t.Fatalf("expected full palette when exhausted, got %d", pool)
	}
	if _, ok := AvatarByID(got.ID); !ok {
		t.Fatalf("picked avatar not in palette: %+v", got)
	}
}
