package yamlio

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Quarantine moves a corrupt file into quarantineDir, timestamped so repeated
// corruption of the same file never overwrites earlier evidence.
func Quarantine(quarantineDir, filePath string) (string, error) {
	if err := os.MkdirAll(quarantineDir, 0755); err != nil {
		return "", fmt.Errorf("create quarantine dir: %w", err)
	}

	name := fmt.Sprintf("%s.%s.corrupt", filepath.Base(filePath), time.Now().Format("20060102T150405"))
	dest := filepath.Join(quarantineDir, name)

	if err := os.Rename(filePath, dest); err != nil {
		return "", fmt.Errorf("move to quarantine: %w", err)
	}
	return dest, nil
}

// RestoreFromBackup replaces filePath with its .bak sibling, refusing when the
// backup itself does not parse as YAML.
func RestoreFromBackup(filePath string) error {
	bakPath := filePath + ".bak"
	if _, err := os.Stat(bakPath); os.IsNotExist(err) {
		return fmt.Errorf("no backup file: %s", bakPath)
	}

	content, err := os.ReadFile(bakPath)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	if err := validateYAML(content); err != nil {
		return fmt.Errorf("backup is also corrupted: %w", err)
	}

	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return fmt.Errorf("restore from backup: %w", err)
	}
	return nil
}

// RecoverCorrupted quarantines filePath and attempts a backup restore.
// When no usable backup exists the file is simply left absent; callers treat
// an absent store file as "no data yet".
func RecoverCorrupted(quarantineDir, filePath string) error {
	if _, err := Quarantine(quarantineDir, filePath); err != nil {
		return fmt.Errorf("quarantine failed: %w", err)
	}
	if err := RestoreFromBackup(filePath); err != nil {
		// No restorable backup. Absent is a valid state for store files.
		return nil
	}
	return nil
}
