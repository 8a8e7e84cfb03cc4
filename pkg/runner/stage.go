package runner

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mightora/playwright-powerplatform/internal/logger"
)

// StageTests copies the caller's spec files into the framework's tests
// directory, preserving relative paths. A missing source directory is not an
// error: it is created empty and the run proceeds with whatever specs the
// framework ships, since a brand-new pipeline may not have tests yet.
func StageTests(srcDir, destDir string) (int, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return 0, fmt.Errorf("create test directory %s: %w", destDir, err)
	}

	info, err := os.Stat(srcDir)
	if os.IsNotExist(err) {
		logger.Warnf("test source %s does not exist; creating it empty", srcDir)
		if mkErr := os.MkdirAll(srcDir, 0o755); mkErr != nil {
			return 0, fmt.Errorf("create test source %s: %w", srcDir, mkErr)
		}
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("test source %s is not a directory", srcDir)
	}

	copied := 0
	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if err := copyFile(path, target); err != nil {
			return err
		}
		copied++
		return nil
	})
	return copied, err
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// copyTree mirrors a directory recursively.
func copyTree(srcDir, destDir string) error {
	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}
