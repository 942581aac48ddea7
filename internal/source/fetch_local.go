package source

import (
	"os"
	"path/filepath"
	"strings"
)

// normalizeLocal strips the `file:` prefix (if present) and expands `~/`.
func normalizeLocal(ref string) (string, error) {
	p := strings.TrimPrefix(ref, "file:")
	if strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, p[2:])
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return abs, nil
}

// fetchLocalDir resolves ref to an absolute directory path. If ref points
// at a file, its parent directory is returned — Template/Recipe sources
// are directories; a single-file reference is addressed via
// fetchLocalBytes instead.
func fetchLocalDir(ref string) (dir, canonical string, err error) {
	abs, err := normalizeLocal(ref)
	if err != nil {
		return "", "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", "", err
	}
	if info.IsDir() {
		return abs, abs, nil
	}
	return filepath.Dir(abs), abs, nil
}

// fetchLocalBytes reads ref directly; if ref is a directory, it looks for
// a `recipe.yml` / `recipe.yaml` file inside (spec §6.1's recipe document
// is conventionally named that way when referenced by directory).
func fetchLocalBytes(ref string) (data []byte, canonical string, err error) {
	abs, err := normalizeLocal(ref)
	if err != nil {
		return nil, "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, "", err
	}
	if !info.IsDir() {
		data, err = os.ReadFile(abs)
		return data, abs, err
	}
	for _, name := range []string{"recipe.yml", "recipe.yaml"} {
		candidate := filepath.Join(abs, name)
		if data, err := os.ReadFile(candidate); err == nil {
			return data, candidate, nil
		}
	}
	return nil, "", os.ErrNotExist
}
