package activitypub

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadBlocklist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.csv")
	csv := "domain,severity\nEvil.Example,suspend\nspam.example,suspend\n"
	if err := os.WriteFile(path, []byte(csv), 0644); err != nil {
		t.Fatalf("Failed to write blocklist: %v", err)
	}

	domains, err := loadBlocklist(path)
	if err != nil {
		t.Fatalf("loadBlocklist failed: %v", err)
	}

	if len(domains) != 2 {
		t.Fatalf("Expected 2 domains, got %d", len(domains))
	}
	if _, ok := domains["evil.example"]; !ok {
		t.Error("Expected lowercased evil.example in blocklist")
	}
	if _, ok := domains["domain"]; ok {
		t.Error("Header row must be skipped")
	}
}

func TestBlockListContains(t *testing.T) {
	b := NewStaticBlockList("evil.example")

	cases := []struct {
		hostname string
		blocked  bool
	}{
		{"evil.example", true},
		{"EVIL.example", true},
		{"sub.evil.example", true},
		{"deep.sub.evil.example", true},
		{"notevil.example", false},
		{"evil.example.org", false},
		{"good.example", false},
	}

	for _, c := range cases {
		if got := b.Contains(c.hostname); got != c.blocked {
			t.Errorf("Contains(%s): expected %v, got %v", c.hostname, c.blocked, got)
		}
	}
}

func TestNewBlockListWatchesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.csv")
	if err := os.WriteFile(path, []byte("domain\nevil.example\n"), 0644); err != nil {
		t.Fatalf("Failed to write blocklist: %v", err)
	}

	b, err := NewBlockList(path)
	if err != nil {
		t.Fatalf("NewBlockList failed: %v", err)
	}
	defer b.Close()

	if !b.Contains("evil.example") {
		t.Error("Expected initial blocklist to be loaded")
	}
}
