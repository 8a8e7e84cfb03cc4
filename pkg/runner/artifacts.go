package runner

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mightora/playwright-powerplatform/internal/logger"
)

// CollectArtifacts mirrors the framework's result and report directories into
// the caller's output path. A directory the run never produced is a warning,
// not an error: a fully passing run with reporters disabled may have neither.
func CollectArtifacts(frameworkDir, outputPath string) error {
	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return fmt.Errorf("create output path %s: %w", outputPath, err)
	}

	for _, name := range []string{resultsDirName, reportDirName} {
		src := filepath.Join(frameworkDir, name)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			logger.Warnf("no %s directory produced by this run", name)
			continue
		}
		dest := filepath.Join(outputPath, name)
		if err := copyTree(src, dest); err != nil {
			return fmt.Errorf("copy %s to %s: %w", src, dest, err)
		}
		logger.Infof("copied %s to %s", name, dest)
	}
	return nil
}
