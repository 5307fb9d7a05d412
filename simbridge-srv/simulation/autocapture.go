package simulation

import "os"

// AutoCaptureSource marks a file-backed source whose file does not exist
// yet. A harness run that finds one switches to capture mode and records
// real traffic to the capture path, so the next run can simulate from it.
type AutoCaptureSource struct {
	capturePath string
}

// NewAutoCaptureSource returns an auto-capture source when src is
// file-backed and no readable file exists at its path. URL and empty
// sources never auto-capture.
func NewAutoCaptureSource(src Source) (*AutoCaptureSource, bool) {
	path := src.Path()
	if path == "" {
		return nil, false
	}
	if isReadable(path) {
		return nil, false
	}
	return &AutoCaptureSource{capturePath: path}, true
}

// CapturePath returns where captured traffic should be exported.
func (a *AutoCaptureSource) CapturePath() string {
	return a.capturePath
}

// isReadable reports whether path exists and can be opened for reading.
func isReadable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// IsReadableFile reports whether a readable regular file exists at path.
// Exported for callers that gate imports on file presence.
func IsReadableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return isReadable(path)
}
