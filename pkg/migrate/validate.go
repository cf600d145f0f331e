package migrate

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks the migrations in dir; see ValidateFS.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	return ValidateFS(os.DirFS(dir))
}

// ValidateFS checks every .sql file at the root of fsys: the filename carries
// a unique 14 digit version, both goose sections exist with Up before Down,
// and StatementBegin/StatementEnd pairs are balanced.
func ValidateFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	seen := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := seen[m[1]]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		seen[m[1]] = name

		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read file %q: %w", name, err)
		}
		if err := checkAnnotations(string(b)); err != nil {
			return fmt.Errorf("migration %q: %w", name, err)
		}
	}
	return nil
}

func checkAnnotations(sql string) error {
	var up, down, open int
	line := 0
	sc := bufio.NewScanner(strings.NewReader(sql))
	for sc.Scan() {
		line++
		switch strings.TrimSpace(sc.Text()) {
		case "-- +goose Up":
			if down > 0 {
				return fmt.Errorf("line %d: Up section after Down", line)
			}
			up++
		case "-- +goose Down":
			if open > 0 {
				return fmt.Errorf("line %d: Down section inside an open statement", line)
			}
			down++
		case "-- +goose StatementBegin":
			if open > 0 {
				return fmt.Errorf("line %d: nested StatementBegin", line)
			}
			open++
		case "-- +goose StatementEnd":
			if open == 0 {
				return fmt.Errorf("line %d: StatementEnd without StatementBegin", line)
			}
			open--
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	switch {
	case up != 1:
		return fmt.Errorf(`expected one "-- +goose Up", found %d`, up)
	case down != 1:
		return fmt.Errorf(`expected one "-- +goose Down", found %d`, down)
	case open != 0:
		return fmt.Errorf("unterminated StatementBegin")
	}
	return nil
}
