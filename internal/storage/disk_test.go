package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "tracker.db")
	if err := os.WriteFile(file, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	index := filepath.Join(dir, "keyword.bleve")
	if err := os.MkdirAll(filepath.Join(index, "store"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(index, "index_meta.json"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(index, "store", "seg"), []byte("c"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"single file", []string{file}, 5},
		{"nested directory", []string{index}, 3},
		{"file and directory", []string{file, index}, 8},
		{"missing path skipped", []string{file, filepath.Join(dir, "nope"), index}, 8},
		{"empty path skipped", []string{"", file}, 5},
		{"nothing", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiskUsageBytes(tt.paths...)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("DiskUsageBytes() = %d, want %d", got, tt.want)
			}
		})
	}
}
