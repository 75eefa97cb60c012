package apkg

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"sort"
)

const (
	// CollectionEntry holds the zstd-framed SQLite collection (modern schema).
	CollectionEntry = "collection.anki21b"
	// MediaEntry holds the media manifest, optionally zstd-framed.
	MediaEntry = "media"
)

// legacyCollectionEntries are the uncompressed collection variants written by
// older exporters. Modern exporters still add one of them as a stub, so they
// only matter when CollectionEntry is absent.
var legacyCollectionEntries = []string{"collection.anki21", "collection.anki2"}

// Archive is an opened package container. Entries are decompressed lazily,
// one at a time, when Extract is called.
type Archive struct {
	entries map[string]*zip.File
	closer  io.Closer
}

// Open parses an in-memory package.
func Open(data []byte) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	return newArchive(zr, nil)
}

// OpenFile opens a package from disk without reading it into memory.
// The caller must Close the returned archive.
func OpenFile(path string) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	a, err := newArchive(&rc.Reader, rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	return a, nil
}

func newArchive(zr *zip.Reader, closer io.Closer) (*Archive, error) {
	a := &Archive{
		entries: make(map[string]*zip.File, len(zr.File)),
		closer:  closer,
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		a.entries[f.Name] = f
	}

	if _, ok := a.entries[CollectionEntry]; !ok {
		for _, legacy := range legacyCollectionEntries {
			if _, found := a.entries[legacy]; found {
				return nil, fmt.Errorf("%w: package only contains legacy collection %q, re-export with a current version", ErrUnsupportedFormat, legacy)
			}
		}
		return nil, fmt.Errorf("%w: missing %q entry", ErrUnsupportedFormat, CollectionEntry)
	}

	return a, nil
}

// Close releases the underlying file, if any.
func (a *Archive) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// Has reports whether the container holds an entry with the given name.
func (a *Archive) Has(name string) bool {
	_, ok := a.entries[name]
	return ok
}

// Names returns all entry names in sorted order.
func (a *Archive) Names() []string {
	names := make([]string, 0, len(a.entries))
	for name := range a.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Extract decompresses a single entry and returns its bytes.
func (a *Archive) Extract(name string) ([]byte, error) {
	f, ok := a.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: entry %q not found", ErrCorruptArchive, name)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open entry %q: %v", ErrCorruptArchive, name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: read entry %q: %v", ErrCorruptArchive, name, err)
	}
	return data, nil
}
