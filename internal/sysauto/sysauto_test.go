package sysauto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shirou/gopsutil/v3/process"
)

func TestListDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o700); err != nil {
		t.Fatal(err)
	}

	s := NewSystem()
	entries, err := s.ListDirectory(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}

	byName := make(map[string]FileEntry)
	for _, e := range entries {
		byName[e.Name] = e
	}
	if f, ok := byName["a.txt"]; !ok || f.IsDir || f.Size != 5 {
		t.Fatalf("a.txt = %+v", byName["a.txt"])
	}
	if d, ok := byName["sub"]; !ok || !d.IsDir {
		t.Fatalf("sub = %+v", byName["sub"])
	}
}

func TestListDirectoryMissingPath(t *testing.T) {
	s := NewSystem()
	if _, err := s.ListDirectory("/definitely/not/here"); err == nil {
		t.Fatal("expected error")
	}
}

func TestGetRunningAppsIncludesSelf(t *testing.T) {
	s := NewSystem()
	apps, err := s.GetRunningApps()
	if err != nil {
		t.Fatal(err)
	}
	if len(apps) == 0 {
		t.Fatal("no processes reported")
	}
	for i := 1; i < len(apps); i++ {
		if apps[i-1].Name > apps[i].Name {
			t.Fatal("apps not sorted by name")
		}
	}

	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		t.Fatal(err)
	}
	selfName, err := self.Name()
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, app := range apps {
		if app.Name == selfName {
			found = true
		}
	}
	if !found {
		t.Fatalf("own process %q not listed", selfName)
	}
}
