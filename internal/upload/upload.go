// Package upload accepts asset bytes onto disk and confirms what they
// actually are by sniffing magic bytes rather than trusting the client's
// declared Content-Type, using gabriel-vasile/mimetype.
package upload

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var allowedPrefixes = []string{"video/", "audio/"}

type Result struct {
	DetectedMIME string
	SizeBytes    int64
}

// SaveAndSniff streams src to destPath, enforcing maxBytes, then sniffs the
// written file's magic bytes to confirm it's a video or audio container.
// The destination file is removed if anything about the upload is rejected.
func SaveAndSniff(src io.Reader, destPath string, maxBytes int64) (*Result, error) {
	out, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload destination %q: %w", destPath, err)
	}
	defer out.Close()

	written, err := io.Copy(out, io.LimitReader(src, maxBytes+1))
	if err != nil {
		os.Remove(destPath)
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	if written > maxBytes {
		os.Remove(destPath)
		return nil, fmt.Errorf("upload exceeds maximum size of %d bytes", maxBytes)
	}

	mime, err := mimetype.DetectFile(destPath)
	if err != nil {
		os.Remove(destPath)
		return nil, fmt.Errorf("failed to detect upload mime type: %w", err)
	}

	if !isAllowed(mime.String()) {
		os.Remove(destPath)
		return nil, fmt.Errorf("unsupported upload type %q", mime.String())
	}

	return &Result{DetectedMIME: mime.String(), SizeBytes: written}, nil
}

func isAllowed(mime string) bool {
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(mime, prefix) {
			return true
		}
	}
	return false
}
