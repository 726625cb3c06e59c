package worker

import "os"

// removeFile is deferred right after a temp download so the local copy is
// cleaned up regardless of how processing exits.
func removeFile(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
