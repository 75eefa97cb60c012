package apkg

import "errors"

// Error taxonomy for package imports. Every error returned by this package
// (and by the importers pipeline) wraps exactly one of these, so callers can
// classify failures with errors.Is.
var (
	// ErrUnsupportedFormat: the compressed collection entry is missing, or
	// only a legacy collection variant is present.
	ErrUnsupportedFormat = errors.New("unsupported package format")

	// ErrCorruptArchive: the ZIP container or a compression frame is unreadable.
	ErrCorruptArchive = errors.New("corrupt archive")

	// ErrSchemaMismatch: an expected table/column is absent, or ordinal
	// invariants of a note type are violated.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrProtobufDecode: a binary configuration blob or the media manifest is
	// structurally invalid.
	ErrProtobufDecode = errors.New("protobuf decode error")

	// ErrCardConversion: a single card could not be materialized.
	ErrCardConversion = errors.New("card conversion error")
)

// Kind returns a stable, machine-readable name for the error class of err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrCorruptArchive):
		return "corrupt_archive"
	case errors.Is(err, ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(err, ErrProtobufDecode):
		return "protobuf_decode_error"
	case errors.Is(err, ErrCardConversion):
		return "card_conversion_error"
	default:
		return "internal_error"
	}
}

// IsFatal reports whether err stops the whole import.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrCardConversion)
}
