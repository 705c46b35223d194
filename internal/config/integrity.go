package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
)

// VerifyIntegrity checks configPath against the .checksums manifest in its
// directory. A missing manifest only warns; an unlisted or modified file fails.
func VerifyIntegrity(configPath string) (*IntegrityResult, error) {
	result := &IntegrityResult{Passed: true}

	dir := filepath.Dir(configPath)
	manifest, err := LoadChecksums(dir)
	if errors.Is(err, fs.ErrNotExist) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("no %s manifest found in %s; run 'deadcode config lock' to enable integrity verification", ChecksumFile, dir))
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	filename := filepath.Base(configPath)
	expectedHash, ok := manifest.Hashes[filename]
	if !ok {
		result.Passed = false
		result.Errors = append(result.Errors, fmt.Sprintf("file %s not in %s manifest", filename, ChecksumFile))
		return result, nil
	}

	actualHash, err := ComputeBlake3Hash(configPath)
	if err != nil {
		return nil, err
	}
	if actualHash != expectedHash {
		result.Passed = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("hash mismatch for %s (expected %s, got %s)", filename, expectedHash, actualHash))
	}
	return result, nil
}
