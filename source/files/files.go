package files

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"unicode"

	"github.com/root-talis/fuelmig/migration"
	"github.com/root-talis/fuelmig/source"
)

type filesSource struct {
	fsys fs.FS
	dir  string
}

const (
	versionLength = 14
	upSuffix      = ".up.sql"
	downSuffix    = ".down.sql"
)

var (
	ErrMigrationsDirectoryIsNotADirectory = errors.New("migrations directory is not a directory")
)

// NewFilesSource reads migrations named V<14 digits>_<name>.up.sql and
// .down.sql from dir. Other entries are ignored.
func NewFilesSource(fsys fs.FS, dir string) (source.Source, error) {
	stat, err := fs.Stat(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat migrations directory: %w", err)
	}

	if !stat.IsDir() {
		return nil, ErrMigrationsDirectoryIsNotADirectory
	}

	return &filesSource{
		fsys: fsys,
		dir:  dir,
	}, nil
}

// GetAvailableMigrations lists migrations in version order, each one parented
// on the previous. The first one has no parent.
func (src *filesSource) GetAvailableMigrations() (*[]migration.Description, error) {
	dirEntries, err := fs.ReadDir(src.fsys, src.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read contents of migrations directory: %w", err)
	}

	// find all suitable migrations and build a collection of descriptions
	migrations := make(revisionMap)
	for _, entry := range dirEntries {
		if entry.IsDir() || !entry.Type().IsRegular() {
			continue
		}

		fileName := entry.Name()
		var direction migration.Direction
		switch {
		case strings.HasSuffix(fileName, upSuffix):
			direction = migration.Up
		case strings.HasSuffix(fileName, downSuffix):
			direction = migration.Down
		default:
			continue
		}

		m, err := getValidMigrationFromFileName(fileName)
		if err != nil {
			continue
		}

		if err := migrations.updateDescription(m, direction); err != nil {
			return nil, fmt.Errorf("failed to parse directory entries: %w", err)
		}
	}

	result := migrations.sorted()
	return &result, nil
}

func (src *filesSource) ReadMigration(m migration.Migration, direction migration.Direction) (io.Reader, error) {
	suffix := upSuffix
	if direction == migration.Down {
		suffix = downSuffix
	}
	fileName := path.Join(src.dir, "V"+string(m.Revision)+"_"+m.Name+suffix)

	body, err := fs.ReadFile(src.fsys, fileName)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", source.ErrMigrationNotFound, fileName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", fileName, err)
	}

	return bytes.NewReader(body), nil
}

// ---

type revisionMap map[migration.Revision]migration.Description

func (m revisionMap) updateDescription(mig migration.Migration, direction migration.Direction) error {
	description, exists := m[mig.Revision]

	switch {
	case !exists:
		m[mig.Revision] = migration.Description{
			Migration: mig,
			CanUndo:   direction == migration.Down,
		}

	case description.Name != mig.Name:
		return fmt.Errorf(
			"%w: migration %s already exists with name \"%s\" (new name \"%s\" is encountered)",
			source.ErrMigrationDuplicated,
			mig.Revision,
			description.Name,
			mig.Name,
		)

	case direction == migration.Down:
		description.CanUndo = true
		m[mig.Revision] = description
	}

	return nil
}

// sorted relies on fixed-width versions ordering the same as text.
func (m revisionMap) sorted() []migration.Description {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	result := make([]migration.Description, len(keys))
	var parent migration.Revision
	for i, k := range keys {
		result[i] = m[migration.Revision(k)]
		result[i].Parent = parent
		parent = result[i].Revision
	}
	return result
}

func getValidMigrationFromFileName(fileName string) (migration.Migration, error) {
	if !strings.HasPrefix(fileName, "V") {
		return migration.Migration{}, fmt.Errorf("migration file name is invalid: %s", fileName)
	}

	migrationFullName := strings.TrimPrefix(fileName, "V")
	migrationFullName = strings.TrimSuffix(migrationFullName, upSuffix)
	migrationFullName = strings.TrimSuffix(migrationFullName, downSuffix)

	asRunes := []rune(migrationFullName)

	if len(asRunes) < versionLength+2 {
		return migration.Migration{}, fmt.Errorf("migration file name is too short to be valid: %s", fileName)
	}

	version := asRunes[:versionLength]

	for _, c := range version {
		if !unicode.IsDigit(c) {
			return migration.Migration{}, fmt.Errorf(
				"migration file name does not contain a valid version (symbol \"%c\" is not allowed): %s",
				c,
				fileName,
			)
		}
	}

	nameAsRunes := asRunes[versionLength:]
	if nameAsRunes[0] != '_' {
		return migration.Migration{}, fmt.Errorf("migration file is missing an underscore after version (%c given): %s", nameAsRunes[0], fileName)
	}

	return migration.Migration{
		Revision: migration.Revision(string(version)),
		Name:     string(nameAsRunes[1:]),
	}, nil
}
