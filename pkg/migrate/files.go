package migrate

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"
)

var (
	fileNameRe  = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
	nonSlugRune = regexp.MustCompile(`[^a-z0-9]+`)
)

var skeleton = template.Must(template.New("migration").Parse(`-- +goose Up
-- +goose StatementBegin
-- {{.}}
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- undo {{.}}
-- +goose StatementEnd
`))

// Slug lowercases name and collapses everything outside [a-z0-9] to single underscores.
func Slug(name string) string {
	return strings.Trim(nonSlugRune.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// Create writes an empty goose migration stamped with the current UTC time.
func Create(dir, name string, now time.Time) (string, error) {
	slug := Slug(name)
	if dir == "" || slug == "" {
		return "", fmt.Errorf("migrate: dir and a usable name are required (got %q)", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, now.UTC().Format("20060102150405")+"_"+slug+".sql")
	var body bytes.Buffer
	if err := skeleton.Execute(&body, slug); err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("migrate: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(body.Bytes()); err != nil {
		return "", err
	}
	return path, nil
}

// Validate checks every .sql file in fsys: timestamped name, unique version,
// and both goose annotations present.
func Validate(fsys fs.FS) error {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return err
	}
	versions := make(map[string]string, len(names))
	for _, name := range names {
		m := fileNameRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("migrate: %s: want YYYYMMDDHHMMSS_slug.sql", name)
		}
		if other, dup := versions[m[1]]; dup {
			return fmt.Errorf("migrate: %s and %s share version %s", other, name, m[1])
		}
		versions[m[1]] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return err
		}
		for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
			if !bytes.Contains(body, []byte(marker)) {
				return fmt.Errorf("migrate: %s: missing %q", name, marker)
			}
		}
	}
	return nil
}
