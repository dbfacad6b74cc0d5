package configutil

import (
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

func splitExt(f string) (string, string) {
	for i := len(f) - 1; i >= 0; i-- {
		if f[i] == '.' {
			return f[0:i], f[i+1:]
		}
	}
	return f, ""
}

// LocalPath returns the path of the local override file for `name`,
// `config.json5` becomes `config.local.json5`.
func LocalPath(name string) string {
	dirname := filepath.Dir(name)
	prefixname, ext := splitExt(filepath.Base(name))
	if ext == "" {
		return filepath.Join(dirname, fmt.Sprintf("%s.local", prefixname))
	}
	return filepath.Join(dirname, fmt.Sprintf("%s.local.%s", prefixname, ext))
}

// Merge reads a json5 configuration file and its local override on top of
// `out`, which should already hold the defaults. The files are applied in this
// order, later ones winning:
// 1. <name>.<ext>
// 2. <name>.local.<ext>
//
// Only non-zero values in a file override what is already in `out`, so a file
// cannot reset a field back to its zero value.
//
// It returns the files that were applied, a missing file is skipped and a
// result of no files at all is not an error.
func Merge[T any](name string, out *T) ([]string, error) {
	var applied []string
	for _, path := range []string{name, LocalPath(name)} {
		contents, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return applied, err
		}
		if len(contents) == 0 {
			continue
		}

		var layer T
		err = json5.Unmarshal(contents, &layer)
		if err != nil {
			return applied, fmt.Errorf("parse %s: %w", path, err)
		}
		err = mergo.Merge(out, layer, mergo.WithOverride)
		if err != nil {
			return applied, fmt.Errorf("merge %s: %w", path, err)
		}
		applied = append(applied, path)
	}
	return applied, nil
}

// FindUp walks up from the current directory until the root looking for a
// file called `name`, it returns os.ErrNotExist when none is found.
func FindUp(name string) (string, error) {
	root, err := filepath.Abs("/")
	if err != nil {
		return "", err
	}
	current, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(current, name)
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		if current == root {
			return "", os.ErrNotExist
		}
		current = filepath.Dir(current)
	}
}
