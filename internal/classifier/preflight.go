package classifier

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CheckModelFiles verifies that every file in required exists under dir.
// The error lists all missing files, not only the first.
func CheckModelFiles(dir string, required ...string) error {
	var missing []string
	for _, name := range required {
		path := filepath.Join(dir, filepath.FromSlash(name))
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			missing = append(missing, path)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w:\n%s", ErrMissingModelFiles, strings.Join(missing, "\n"))
	}
	return nil
}
