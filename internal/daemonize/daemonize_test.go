package daemonize

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadPID(t *testing.T) {
	dir := t.TempDir()

	write := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(dir, strings.ReplaceAll(t.Name(), "/", "_")+".pid")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"plain pid", "12345", 12345},
		{"trailing newline", "12345\n", 12345},
		{"garbage", "not-a-pid", 0},
		{"negative", "-4", 0},
		{"empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReadPID(write(t, tt.content)); got != tt.want {
				t.Errorf("ReadPID = %d, want %d", got, tt.want)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		if got := ReadPID(filepath.Join(dir, "does-not-exist.pid")); got != 0 {
			t.Errorf("ReadPID = %d, want 0", got)
		}
	})
}

func TestAlive(t *testing.T) {
	if !Alive(os.Getpid()) {
		t.Error("own process reported dead")
	}
	if Alive(0) {
		t.Error("pid 0 reported alive")
	}
	if Alive(-1) {
		t.Error("pid -1 reported alive")
	}
}

func TestRemoveStale(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "d.sock")
	pid := filepath.Join(dir, "d.pid")
	for _, path := range []string{sock, pid} {
		if err := os.WriteFile(path, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	RemoveStale(sock, pid)

	for _, path := range []string{sock, pid} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s still exists after RemoveStale", path)
		}
	}
}
