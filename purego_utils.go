//go:build (darwin || linux) && !cgo

// Shared utilities for purego-loaded libraries.

package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/ebitengine/purego"
)

// sharedLibName returns the platform file name of lib with an optional
// major version, e.g. libswscale.so.8 or libswscale.8.dylib.
func sharedLibName(lib string, major int) string {
	switch {
	case runtime.GOOS == "darwin" && major > 0:
		return fmt.Sprintf("%s.%d.dylib", lib, major)
	case runtime.GOOS == "darwin":
		return lib + ".dylib"
	case major > 0:
		return fmt.Sprintf("%s.so.%d", lib, major)
	default:
		return lib + ".so"
	}
}

// libraryPaths lists candidate locations of lib, most specific first:
// the env override (a file or a directory), next to the executable,
// under the module root, then the system search path and the usual
// prefixes.
func libraryPaths(env, lib string, majors ...int) []string {
	names := []string{sharedLibName(lib, 0)}
	for _, m := range majors {
		names = append(names, sharedLibName(lib, m))
	}

	var paths []string
	if v := os.Getenv(env); v != "" {
		if st, err := os.Stat(v); err == nil && st.IsDir() {
			for _, n := range names {
				paths = append(paths, filepath.Join(v, n))
			}
		} else {
			paths = append(paths, v)
		}
	}

	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe), filepath.Join(filepath.Dir(exe), "..", "lib"))
	}
	if root := findModuleRoot(); root != "" {
		dirs = append(dirs, filepath.Join(root, "build"), filepath.Join(root, "build", "lib"))
	}
	switch runtime.GOOS {
	case "darwin":
		dirs = append(dirs, "/opt/homebrew/lib", "/usr/local/lib")
	case "linux":
		dirs = append(dirs, "/usr/local/lib", "/usr/lib/x86_64-linux-gnu", "/usr/lib/aarch64-linux-gnu", "/usr/lib64", "/usr/lib")
	}

	for _, d := range dirs {
		for _, n := range names {
			paths = append(paths, filepath.Join(d, n))
		}
	}
	// Bare names go through the dynamic loader's own search.
	return append(paths, names...)
}

// dlopenFirst opens the first path that loads.
func dlopenFirst(paths []string) (uintptr, error) {
	var errs []error
	for _, p := range paths {
		h, err := purego.Dlopen(p, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			return h, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return 0, errors.New("no candidate paths")
	}
	return 0, errors.Join(errs...)
}

// findModuleRoot walks up the directory tree from the current working directory
// to find the module root (directory containing go.mod).
func findModuleRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}
