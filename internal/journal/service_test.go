package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestEntryLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	entry := Entry{
		Title:     "Rough morning",
		Body:      "Could not get out of bed until ten.",
		Mood:      "low",
		MoodScore: 3,
		Tags:      []string{"sleep"},
		EntryDate: "2025-06-02",
	}

	rev, err := svc.SaveEntry("usr_1", "rfl_1", entry, "Avery", "Create entry")
	if err != nil {
		t.Fatalf("SaveEntry() error = %v", err)
	}
	if rev.Hash == "" {
		t.Fatal("expected revision hash")
	}
	if _, err := os.Stat(filepath.Join(tempDir, "usr_1", "entries", "rfl_1.json")); err != nil {
		t.Fatalf("entry file missing: %v", err)
	}

	entry.Body = "Could not get out of bed until ten. Walked anyway."
	rev2, err := svc.SaveEntry("usr_1", "rfl_1", entry, "Avery", "Update entry")
	if err != nil {
		t.Fatalf("SaveEntry() update error = %v", err)
	}

	history, err := svc.History("usr_1", "rfl_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 revisions, got %d", len(history))
	}
	if history[0].Hash != rev2.Hash {
		t.Fatalf("expected newest revision first, got %s", history[0].Hash)
	}

	old, err := svc.EntryAtRevision("usr_1", "rfl_1", rev.Hash)
	if err != nil {
		t.Fatalf("EntryAtRevision() error = %v", err)
	}
	if old.Body != "Could not get out of bed until ten." {
		t.Fatalf("unexpected body at first revision: %q", old.Body)
	}
}

func TestHistoryScopedToEntry(t *testing.T) {
	svc := New(t.TempDir())

	if _, err := svc.SaveEntry("usr_1", "rfl_a", Entry{Title: "A", Body: "a", EntryDate: "2025-06-01"}, "Avery", "Create A"); err != nil {
		t.Fatalf("SaveEntry(A) error = %v", err)
	}
	if _, err := svc.SaveEntry("usr_1", "rfl_b", Entry{Title: "B", Body: "b", EntryDate: "2025-06-02"}, "Avery", "Create B"); err != nil {
		t.Fatalf("SaveEntry(B) error = %v", err)
	}

	history, err := svc.History("usr_1", "rfl_a", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 revision for rfl_a, got %d", len(history))
	}
}

func TestRemoveEntry(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if _, err := svc.SaveEntry("usr_1", "rfl_1", Entry{Title: "T", Body: "b", EntryDate: "2025-06-01"}, "Avery", "Create"); err != nil {
		t.Fatalf("SaveEntry() error = %v", err)
	}
	if err := svc.RemoveEntry("usr_1", "rfl_1", "Avery"); err != nil {
		t.Fatalf("RemoveEntry() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "usr_1", "entries", "rfl_1.json")); !os.IsNotExist(err) {
		t.Fatal("expected entry file to be removed")
	}

	// History survives removal.
	history, err := svc.History("usr_1", "rfl_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected create and delete commits, got %d", len(history))
	}
}

func TestRemoveMissingRepoIsNoOp(t *testing.T) {
	svc := New(t.TempDir())
	if err := svc.RemoveEntry("usr_never", "rfl_never", "Avery"); err != nil {
		t.Fatalf("RemoveEntry() on missing repo error = %v", err)
	}
}

func TestConcurrentSavesSameUser(t *testing.T) {
	svc := New(t.TempDir())

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			entry := Entry{
				Title:     fmt.Sprintf("Entry %02d", idx),
				Body:      fmt.Sprintf("body-%02d", idx),
				EntryDate: "2025-06-01",
			}
			if _, err := svc.SaveEntry("usr_1", fmt.Sprintf("rfl_%02d", idx), entry, "Avery", fmt.Sprintf("Create %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("SaveEntry() concurrent error = %v", err)
		}
	}

	for i := 0; i < writers; i++ {
		history, err := svc.History("usr_1", fmt.Sprintf("rfl_%02d", i), 10)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(history) != 1 {
			t.Fatalf("expected 1 revision for rfl_%02d, got %d", i, len(history))
		}
	}
}

func TestDeleteUserRepo(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if _, err := svc.SaveEntry("usr_1", "rfl_1", Entry{Title: "T", Body: "b", EntryDate: "2025-06-01"}, "Avery", "Create"); err != nil {
		t.Fatalf("SaveEntry() error = %v", err)
	}
	if err := svc.DeleteUserRepo("usr_1"); err != nil {
		t.Fatalf("DeleteUserRepo() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "usr_1")); !os.IsNotExist(err) {
		t.Fatal("expected user repo to be removed")
	}
}
