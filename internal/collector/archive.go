package collector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// archiveSchemaVersion must be bumped when Report changes shape.
const archiveSchemaVersion uint16 = 1

// ErrArchiveSchema is returned for archives written by another schema.
var ErrArchiveSchema = errors.New("archive schema mismatch")

type archive struct {
	Schema uint16 `msgpack:"schema"`
	Report Report `msgpack:"report"`
}

// SaveArchive writes rep to path as msgpack. The file is replaced
// atomically, so readers never see a partial archive.
func SaveArchive(path string, rep Report) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "tmp-*.mp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	if err = msgpack.NewEncoder(f).Encode(&archive{Schema: archiveSchemaVersion, Report: rep}); err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// LoadArchive reads an archive written by SaveArchive.
func LoadArchive(path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, err
	}
	defer f.Close()

	var a archive
	if err := msgpack.NewDecoder(f).Decode(&a); err != nil {
		return Report{}, fmt.Errorf("decode archive %s: %w", path, err)
	}
	if a.Schema != archiveSchemaVersion {
		return Report{}, fmt.Errorf("%w: %s has schema %d, want %d", ErrArchiveSchema, path, a.Schema, archiveSchemaVersion)
	}
	return a.Report, nil
}
