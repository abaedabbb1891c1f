// Package workspace manages the on-disk layout reeltime writes uploads and
// transcode output under. It is grounded on the teacher's
// internal/ffmpeg/exec.go (GetOutputBaseDirectory's use of go-homedir to
// expand a configurable "~"-rooted path) and on the original Python
// service's run_ffmpeg_process, whose idempotent
// os.path.exists/os.remove/os.replace sequence PromoteOutput reproduces.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/google/uuid"
)

// Workspace roots every owner's files under a single configured directory,
// one subdirectory per owner.
type Workspace struct {
	root string
}

func New(root string) (*Workspace, error) {
	expanded, err := homedir.Expand(root)
	if err != nil {
		return nil, fmt.Errorf("failed to expand workspace root %q: %w", root, err)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root %q: %w", expanded, err)
	}
	return &Workspace{root: expanded}, nil
}

func (w *Workspace) ownerDir(ownerID uuid.UUID) string {
	return filepath.Join(w.root, ownerID.String())
}

func (w *Workspace) EnsureOwnerDir(ownerID uuid.UUID) (string, error) {
	dir := w.ownerDir(ownerID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create owner workspace %q: %w", dir, err)
	}
	return dir, nil
}

// UploadPath returns where an uploaded asset's bytes should be written.
func (w *Workspace) UploadPath(ownerID, assetID uuid.UUID, ext string) (string, error) {
	dir, err := w.EnsureOwnerDir(ownerID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, assetID.String()+ext), nil
}

// TempAndFinalOutputPaths returns the path a transcode should write to while
// running, and the final path it's promoted to on success.
func (w *Workspace) TempAndFinalOutputPaths(ownerID, taskID uuid.UUID, ext string) (temp string, final string, err error) {
	dir, err := w.EnsureOwnerDir(ownerID)
	if err != nil {
		return "", "", err
	}
	final = filepath.Join(dir, taskID.String()+ext)
	temp = final + ".tmp"
	return temp, final, nil
}

// PromoteOutput atomically replaces final with temp. It's idempotent: if
// final already exists (a retried promote after a crash mid-rename) the
// stale file is removed first.
func PromoteOutput(temp, final string) error {
	if _, err := os.Stat(final); err == nil {
		if err := os.Remove(final); err != nil {
			return fmt.Errorf("failed to remove stale output at %q: %w", final, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat existing output at %q: %w", final, err)
	}

	if err := os.Rename(temp, final); err != nil {
		return fmt.Errorf("failed to promote %q to %q: %w", temp, final, err)
	}
	return nil
}

func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %q: %w", path, err)
	}
	return nil
}

func Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %q: %w", path, err)
	}
	return info.Size(), nil
}
