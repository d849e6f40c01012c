// Package atomicfile provides crash-safe writes for every durable
// artifact the exporter produces: temp file + fsync + rename, always
// on the same filesystem as the final target, with forward-slash path
// hygiene regardless of host OS.
package atomicfile

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/reconquest/karma-go"

	"github.com/bonovoxly/confluence-exporter/internal/checksum"
)

// ToSlash normalizes p to forward slashes, the form used for every
// path recorded in manifests, journals and emitted Markdown links.
func ToSlash(p string) string {
	return filepath.ToSlash(p)
}

// WriteFile creates the parent directory of path if needed, writes
// data to "<path>.tmp", fsyncs it, and renames it onto path. The
// rename is atomic as long as path's parent directory lives on a
// single filesystem, which callers are responsible for (the exporter
// never splits outputDir across mounts).
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return karma.Describe("path", path).Format(err, "unable to create parent directory")
	}

	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return karma.Describe("path", tmp).Format(err, "unable to create temp file")
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return karma.Describe("path", tmp).Format(err, "unable to write temp file")
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return karma.Describe("path", tmp).Format(err, "unable to fsync temp file")
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return karma.Describe("path", tmp).Format(err, "unable to close temp file")
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return karma.
			Describe("from", tmp).
			Describe("to", path).
			Format(err, "unable to rename temp file into place")
	}

	return nil
}

// WriteJSON canonically encodes v (sorted keys, no indentation
// ambiguity) and writes it atomically to path.
func WriteJSON(path string, v interface{}) error {
	data, err := checksum.Canonical(v)
	if err != nil {
		return karma.Describe("path", path).Reason(err)
	}

	return WriteFile(path, data, 0o644)
}

// WriteJSONPretty is like WriteJSON but pretty-prints with indentation
// for artifacts meant to be human-read (e.g. manifest.json per spec §6).
func WriteJSONPretty(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return karma.Describe("path", path).Format(err, "unable to marshal JSON")
	}
	data = append(data, '\n')

	return WriteFile(path, data, 0o644)
}

// ReadJSON reads and decodes path into v. Returns the raw bytes too,
// including when decoding fails.
func ReadJSON(path string, v interface{}) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return data, karma.Describe("path", path).Format(err, "unable to unmarshal JSON")
	}

	return data, nil
}

// Exists reports whether path exists on disk.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Remove deletes path if present; absence is not an error.
func Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return karma.Describe("path", path).Format(err, "unable to remove file")
	}
	return nil
}
