// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package packer

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile writes the archive to a temporary file next to path and
// atomically renames it into place, read-only.
func (p *Packer) WriteFile(path string) (err error) {
	path, err = filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("filepath.Abs: %w", err)
	}
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "docpack-packer.*.tmp")
	if err != nil {
		return fmt.Errorf("CreateTemp failed (may need permissions for dir %q): %w", dir, err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if _, err = p.WriteTo(f); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("f.Sync: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("f.Close: %w", err)
	}
	// make the file read-only
	if err = os.Chmod(f.Name(), 0444); err != nil {
		return fmt.Errorf("os.Chmod(0444): %w", err)
	}
	if err = os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("os.Rename: %w", err)
	}
	return nil
}
