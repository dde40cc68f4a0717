package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// StoragePaths holds the directories used by one namespace
type StoragePaths struct {
	BaseDir      string
	NamespaceDir string
	EngineDir    string
}

// InitDirectories creates and validates the directories for a namespace and engine
func InitDirectories(baseDir, namespace, engine string) (*StoragePaths, error) {
	baseDir = filepath.Clean(baseDir)
	nsDir := filepath.Join(baseDir, hashNamespace(namespace))

	paths := &StoragePaths{
		BaseDir:      baseDir,
		NamespaceDir: nsDir,
		EngineDir:    filepath.Join(nsDir, engine),
	}

	if err := os.MkdirAll(paths.EngineDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", paths.EngineDir, err)
	}

	if err := validateDirectory(paths.EngineDir); err != nil {
		return nil, fmt.Errorf("directory validation failed for %s: %w", paths.EngineDir, err)
	}

	return paths, nil
}

// validateDirectory checks if a directory exists and is writable
func validateDirectory(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("directory does not exist: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("directory is not writable: %w", err)
	}
	file.Close()
	os.Remove(testFile)

	return nil
}

// hashNamespace maps a namespace to a short, filesystem-safe directory name
func hashNamespace(namespace string) string {
	return fmt.Sprintf("%08x", hashString(namespace))
}

// hashString is 32-bit FNV-1a over the namespace's runes
func hashString(s string) uint32 {
	var hash uint32 = 2166136261
	for _, c := range s {
		hash ^= uint32(c)
		hash *= 16777619
	}
	return hash
}
