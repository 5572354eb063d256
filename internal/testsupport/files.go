package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// StubBinary drops an executable shell script with the given name on a temp
// directory, prepends that directory to PATH, and returns the script path.
// The script touches the argument following any "-o"/"-y" style output flag
// by creating the last argument as an empty file, then prints the payload.
func StubBinary(t testing.TB, name, payload string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, name)
	script := fmt.Sprintf("#!/bin/sh\nlast=\"\"\nfor arg in \"$@\"; do last=\"$arg\"; done\ncase \"$last\" in\n  /*) : > \"$last\" 2>/dev/null || true ;;\nesac\nprintf '%%s' '%s'\nexit 0\n", payload)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	return path
}

// RecordingBinary drops a stub like StubBinary that additionally appends the
// argv of every invocation, one line per call, to the returned log file.
func RecordingBinary(t testing.TB, name string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, name)
	logPath := filepath.Join(dir, name+".argv")
	script := fmt.Sprintf("#!/bin/sh\necho \"$@\" >> '%s'\nlast=\"\"\nfor arg in \"$@\"; do last=\"$arg\"; done\ncase \"$last\" in\n  /*) : > \"$last\" 2>/dev/null || true ;;\nesac\nexit 0\n", logPath)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	return logPath
}

// FailingBinary drops an executable that exits non-zero with a message.
func FailingBinary(t testing.TB, name, message string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, name)
	script := fmt.Sprintf("#!/bin/sh\necho '%s' >&2\nexit 1\n", message)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	return path
}
