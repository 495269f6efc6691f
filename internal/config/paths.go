package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExecutableDir is the anchor for relative runtime paths: the directory of the
// running binary with symlinks resolved, else the working directory.
func ExecutableDir() string {
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		return filepath.Dir(exe)
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// ResolveRuntimePath turns a configured directory into an absolute one. Blank
// uses fallback; "~/" expands to the home directory; anything else relative
// hangs off ExecutableDir.
func ResolveRuntimePath(raw, fallback string) string {
	target := strings.TrimSpace(raw)
	if target == "" {
		target = strings.TrimSpace(fallback)
	}
	switch {
	case target == "":
		return ExecutableDir()
	case filepath.IsAbs(target):
		return filepath.Clean(target)
	case strings.HasPrefix(target, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, target[2:])
		}
	}
	return filepath.Join(ExecutableDir(), target)
}
