package apkg

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// MessageSchema is the minimal description of a protobuf message: the field
// numbers we read and the wire type each must have. Fields outside the schema
// are skipped, so newer exporters adding fields never break decoding.
type MessageSchema struct {
	Name   string
	Fields map[protowire.Number]protowire.Type
}

// SchemaRegistry holds every message shape this package decodes. It is an
// immutable value built once by DefaultRegistry and passed to decoders.
type SchemaRegistry struct {
	TemplateConfig MessageSchema
	NoteTypeConfig MessageSchema
	MediaEntries   MessageSchema
	MediaEntry     MessageSchema
}

// Field numbers of the supported messages.
const (
	templateQuestionFormat protowire.Number = 1
	templateAnswerFormat   protowire.Number = 2

	noteTypeKind protowire.Number = 1

	mediaEntriesEntry protowire.Number = 1

	mediaEntryName protowire.Number = 1
	mediaEntrySize protowire.Number = 2
	mediaEntrySHA1 protowire.Number = 3

	// Set by exporters that kept the old numbering of archive entries.
	mediaEntryLegacyName protowire.Number = 255
)

// DefaultRegistry returns the schemas of the current export format.
func DefaultRegistry() SchemaRegistry {
	return SchemaRegistry{
		TemplateConfig: MessageSchema{
			Name: "CardTemplateConfig",
			Fields: map[protowire.Number]protowire.Type{
				templateQuestionFormat: protowire.BytesType,
				templateAnswerFormat:   protowire.BytesType,
			},
		},
		NoteTypeConfig: MessageSchema{
			Name: "NotetypeConfig",
			Fields: map[protowire.Number]protowire.Type{
				noteTypeKind: protowire.VarintType,
			},
		},
		MediaEntries: MessageSchema{
			Name: "MediaEntries",
			Fields: map[protowire.Number]protowire.Type{
				mediaEntriesEntry: protowire.BytesType,
			},
		},
		MediaEntry: MessageSchema{
			Name: "MediaEntry",
			Fields: map[protowire.Number]protowire.Type{
				mediaEntryName:       protowire.BytesType,
				mediaEntrySize:       protowire.VarintType,
				mediaEntrySHA1:       protowire.BytesType,
				mediaEntryLegacyName: protowire.VarintType,
			},
		},
	}
}

// fieldValue is one decoded occurrence of a known field.
type fieldValue struct {
	varint uint64
	bytes  []byte
}

// message maps a field number to all of its occurrences, in wire order.
type message map[protowire.Number][]fieldValue

// last returns the last occurrence of a field, which wins for singular
// fields under protobuf merge semantics.
func (m message) last(num protowire.Number) (fieldValue, bool) {
	values := m[num]
	if len(values) == 0 {
		return fieldValue{}, false
	}
	return values[len(values)-1], true
}

func (m message) text(num protowire.Number) string {
	v, _ := m.last(num)
	return string(v.bytes)
}

func (m message) varint(num protowire.Number) uint64 {
	v, _ := m.last(num)
	return v.varint
}

// decode walks the wire encoding of b and collects the fields known to the
// schema. It fails only on structurally invalid input: a truncated tag or
// value, an invalid wire type, or a known field with the wrong wire type.
func (s MessageSchema) decode(b []byte) (message, error) {
	msg := make(message)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %s: tag: %v", ErrProtobufDecode, s.Name, protowire.ParseError(n))
		}
		b = b[n:]

		want, known := s.Fields[num]
		if known && want != typ {
			return nil, fmt.Errorf("%w: %s: field %d has wire type %d, want %d", ErrProtobufDecode, s.Name, num, typ, want)
		}

		var value fieldValue
		switch {
		case known && typ == protowire.VarintType:
			value.varint, n = protowire.ConsumeVarint(b)
		case known && typ == protowire.BytesType:
			value.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: %s: field %d: %v", ErrProtobufDecode, s.Name, num, protowire.ParseError(n))
		}
		b = b[n:]

		if known {
			msg[num] = append(msg[num], value)
		}
	}
	return msg, nil
}

// TemplateConfig is the decoded configuration of a card template.
type TemplateConfig struct {
	QuestionFormat string
	AnswerFormat   string
}

// ConfigDecoder decodes configuration blobs using a SchemaRegistry. It holds
// no mutable state and is safe for concurrent use.
type ConfigDecoder struct {
	registry SchemaRegistry
}

// NewConfigDecoder creates a decoder bound to the given registry.
func NewConfigDecoder(registry SchemaRegistry) *ConfigDecoder {
	return &ConfigDecoder{registry: registry}
}

// DecodeTemplateConfig decodes a templates.config blob.
func (d *ConfigDecoder) DecodeTemplateConfig(b []byte) (TemplateConfig, error) {
	msg, err := d.registry.TemplateConfig.decode(b)
	if err != nil {
		return TemplateConfig{}, err
	}
	return TemplateConfig{
		QuestionFormat: msg.text(templateQuestionFormat),
		AnswerFormat:   msg.text(templateAnswerFormat),
	}, nil
}

// DecodeNoteTypeKind decodes the kind stored in a notetypes.config blob.
// Unknown kind values are treated as standard note types.
func (d *ConfigDecoder) DecodeNoteTypeKind(b []byte) (NoteTypeKind, error) {
	msg, err := d.registry.NoteTypeConfig.decode(b)
	if err != nil {
		return KindStandard, err
	}
	if msg.varint(noteTypeKind) == uint64(KindCloze) {
		return KindCloze, nil
	}
	return KindStandard, nil
}
