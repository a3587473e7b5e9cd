// Package setup creates the on-disk layout for a new shiftflow workspace.
package setup

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/andreddluiz/shiftflow/templates"
)

// SessionDirName is the per-workspace metadata directory.
const SessionDirName = ".shiftflow"

// Init creates the workspace layout under root:
//
//	.shiftflow/{logs,locks,quarantine}
//	store/{drafts,status}
//	config.yaml, rules.yaml (from templates, never overwritten)
//
// Init is idempotent; existing files and directories are left alone.
func Init(root string) error {
	dirs := []string{
		filepath.Join(root, SessionDirName, "logs"),
		filepath.Join(root, SessionDirName, "locks"),
		filepath.Join(root, SessionDirName, "quarantine"),
		filepath.Join(root, "store", "drafts"),
		filepath.Join(root, "store", "status"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	files := map[string]string{
		"config.yaml": filepath.Join(root, "config.yaml"),
		"rules.yaml":  filepath.Join(root, "rules.yaml"),
	}
	for src, dest := range files {
		if _, err := os.Stat(dest); err == nil {
			continue
		}
		content, err := templates.FS.ReadFile(src)
		if err != nil {
			return fmt.Errorf("read template %s: %w", src, err)
		}
		if err := os.WriteFile(dest, content, 0644); err != nil {
			return fmt.Errorf("write %s: %w", dest, err)
		}
	}

	return nil
}

// FindRoot walks from dir toward the filesystem root looking for an
// initialized workspace. Returns "" when none is found.
func FindRoot(dir string) string {
	for {
		if info, err := os.Stat(filepath.Join(dir, SessionDirName)); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
