package migrate

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// SourceDir is where new migrations are written; the binaries read the
// embedded copy.
const SourceDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Embedded returns the migrations compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

const versionLayout = "20060102150405"

var (
	fileName  = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
	nameChars = regexp.MustCompile(`[^a-z0-9]+`)
)

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- revert %[1]s
-- +goose StatementEnd
`

// CreateSQLMigration writes an empty goose migration named
// <YYYYMMDDHHMMSS>_<slug>.sql into dir and returns its path.
func CreateSQLMigration(dir, name string) (string, error) {
	return createAt(dir, name, time.Now().UTC())
}

func createAt(dir, name string, at time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("migration dir is required")
	}
	slug := strings.Trim(nameChars.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	path := filepath.Join(dir, at.Format(versionLayout)+"_"+slug+".sql")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, migrationTemplate, slug); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// ValidateDir checks the migrations under dir on disk.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("migration dir is required")
	}
	return Validate(os.DirFS(dir))
}

// Validate checks every .sql file in fsys: the file name carries a unique
// version, the Up section precedes the Down section and statement blocks
// are balanced.
func Validate(fsys fs.FS) error {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return err
	}
	versions := make(map[string]string, len(names))
	for _, name := range names {
		m := fileName.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("%s: expected YYYYMMDDHHMMSS_name.sql", name)
		}
		if prev, dup := versions[m[1]]; dup {
			return fmt.Errorf("%s: version %s already used by %s", name, m[1], prev)
		}
		versions[m[1]] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return err
		}
		if err := checkAnnotations(body); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func checkAnnotations(body []byte) error {
	var up, down bool
	open := 0
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "-- +goose Up":
			up = true
		case "-- +goose Down":
			if !up {
				return fmt.Errorf("down section before up section")
			}
			down = true
		case "-- +goose StatementBegin":
			open++
		case "-- +goose StatementEnd":
			open--
			if open < 0 {
				return fmt.Errorf("StatementEnd without StatementBegin")
			}
		}
	}
	switch {
	case !up:
		return fmt.Errorf("missing -- +goose Up")
	case !down:
		return fmt.Errorf("missing -- +goose Down")
	case open != 0:
		return fmt.Errorf("unterminated StatementBegin")
	}
	return scanner.Err()
}
