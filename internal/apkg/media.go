package apkg

import (
	"fmt"
	"sort"
	"strconv"
)

// MediaFile describes one media blob stored in the container.
type MediaFile struct {
	Key  string // archive entry name: "0", "1", ...
	Name string // original filename referenced from note content
	Size uint64
	SHA1 []byte
}

// MediaManifest maps numbered archive entries to original filenames and back.
type MediaManifest struct {
	byKey  map[string]MediaFile
	byName map[string]string
}

// NewMediaManifest builds a manifest from a list of files. A later file with an
// already known name replaces the earlier one.
func NewMediaManifest(files []MediaFile) *MediaManifest {
	m := &MediaManifest{
		byKey:  make(map[string]MediaFile, len(files)),
		byName: make(map[string]string, len(files)),
	}
	for _, f := range files {
		if prev, ok := m.byName[f.Name]; ok {
			delete(m.byKey, prev)
		}
		m.byKey[f.Key] = f
		m.byName[f.Name] = f.Key
	}
	return m
}

// Filename returns the original filename stored under an archive key.
func (m *MediaManifest) Filename(key string) (string, bool) {
	f, ok := m.byKey[key]
	return f.Name, ok
}

// Key returns the archive entry name holding the given original filename.
func (m *MediaManifest) Key(name string) (string, bool) {
	key, ok := m.byName[name]
	return key, ok
}

// File returns the manifest entry for an original filename.
func (m *MediaManifest) File(name string) (MediaFile, bool) {
	key, ok := m.byName[name]
	if !ok {
		return MediaFile{}, false
	}
	return m.byKey[key], true
}

// Len returns the number of media files.
func (m *MediaManifest) Len() int {
	return len(m.byKey)
}

// Names returns all original filenames, sorted.
func (m *MediaManifest) Names() []string {
	names := make([]string, 0, len(m.byName))
	for name := range m.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DecodeMediaManifest decodes the media entry of a package. The envelope is
// decompressed first when it is a zstd frame and parsed as-is otherwise.
// Entry keys are the zero-based position of each record unless the record
// carries an explicit legacy entry number.
func (d *ConfigDecoder) DecodeMediaManifest(data []byte) (*MediaManifest, error) {
	if IsZstdFrame(data) {
		raw, err := Decompress(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress media manifest: %w", err)
		}
		data = raw
	}

	envelope, err := d.registry.MediaEntries.decode(data)
	if err != nil {
		return nil, err
	}

	entries := envelope[mediaEntriesEntry]
	files := make([]MediaFile, 0, len(entries))
	for i, entry := range entries {
		msg, err := d.registry.MediaEntry.decode(entry.bytes)
		if err != nil {
			return nil, fmt.Errorf("media entry %d: %w", i, err)
		}

		key := strconv.Itoa(i)
		if legacy, ok := msg.last(mediaEntryLegacyName); ok {
			key = strconv.FormatUint(legacy.varint, 10)
		}

		name := msg.text(mediaEntryName)
		if name == "" {
			return nil, fmt.Errorf("%w: media entry %d has no name", ErrProtobufDecode, i)
		}

		sha, _ := msg.last(mediaEntrySHA1)
		files = append(files, MediaFile{
			Key:  key,
			Name: name,
			Size: msg.varint(mediaEntrySize),
			SHA1: sha.bytes,
		})
	}

	return NewMediaManifest(files), nil
}
