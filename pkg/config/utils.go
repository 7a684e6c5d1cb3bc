package config

import (
	"os"
	"path/filepath"
)

// FindEnvFile returns the closest file named filename (default ".env") in
// the working directory or one of its parents. Tests run from package
// directories rely on this to reach the repository root.
func FindEnvFile(filename string) (string, error) {
	if filename == "" {
		filename = ".env"
	}
	if filepath.IsAbs(filename) {
		if _, err := os.Stat(filename); err != nil {
			return "", err
		}
		return filename, nil
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for parent := ""; parent != dir; dir, parent = filepath.Dir(dir), dir {
		candidate := filepath.Join(dir, filename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", os.ErrNotExist
}
