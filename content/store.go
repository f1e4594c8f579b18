package content

import (
	"os"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/rotisserie/eris"

	"github.com/aluiziolira/go-stock-sync/identity"
)

// DefaultExt is the extension of content record files.
const DefaultExt = "mdx"

// ErrNotFound is returned by Read when no record exists for a key.
var ErrNotFound = eris.New("content: record not found")

// Store persists records as <key>.<ext> files in the root of a filesystem.
// It does not lock; callers serialise access per key.
type Store struct {
	fs  billy.Filesystem
	ext string
}

// NewStore returns a store on fs. An empty ext selects DefaultExt.
func NewStore(fs billy.Filesystem, ext string) *Store {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = DefaultExt
	}
	return &Store{fs: fs, ext: ext}
}

// Path returns the file name backing key.
func (s *Store) Path(key string) string {
	return identity.FileName(key, s.ext)
}

// Exists reports whether a record is persisted for key.
func (s *Store) Exists(key string) (bool, error) {
	_, err := s.fs.Stat(s.Path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, eris.Wrapf(err, "content: stat %s", key)
}

// Read loads and parses the record for key.
func (s *Store) Read(key string) (*Record, error) {
	data, err := util.ReadFile(s.fs, s.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Wrapf(ErrNotFound, "key %s", key)
		}
		return nil, eris.Wrapf(err, "content: read %s", key)
	}
	rec, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "content: parse %s", key)
	}
	rec.Key = key
	return rec, nil
}

// Write renders rec and replaces its file atomically.
func (s *Store) Write(rec *Record) error {
	data, err := Render(rec)
	if err != nil {
		return err
	}
	name := s.Path(rec.Key)
	tmp := name + ".tmp"
	if err := util.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "content: write %s", rec.Key)
	}
	if err := s.fs.Rename(tmp, name); err != nil {
		_ = s.fs.Remove(tmp)
		return eris.Wrapf(err, "content: rename %s", rec.Key)
	}
	return nil
}

// Keys lists the keys of every persisted record, sorted.
func (s *Store) Keys() ([]string, error) {
	infos, err := s.fs.ReadDir(".")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "content: list records")
	}
	suffix := "." + s.ext
	var keys []string
	for _, info := range infos {
		if !info.Mode().IsRegular() || !strings.HasSuffix(info.Name(), suffix) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(info.Name(), suffix))
	}
	sort.Strings(keys)
	return keys, nil
}

// Reset removes every record file and leftover temporary file so a run
// starts from an empty collection. Other files are left alone.
func (s *Store) Reset() (int, error) {
	infos, err := s.fs.ReadDir(".")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, eris.Wrap(err, "content: list records")
	}
	removed := 0
	for _, info := range infos {
		name := info.Name()
		if !info.Mode().IsRegular() {
			continue
		}
		if !strings.HasSuffix(name, "."+s.ext) && !strings.HasSuffix(name, "."+s.ext+".tmp") {
			continue
		}
		if err := s.fs.Remove(name); err != nil {
			return removed, eris.Wrapf(err, "content: remove %s", name)
		}
		removed++
	}
	return removed, nil
}
