package seal

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Schema is the ordered list of field names a Coordinator accepts. It is
// fixed at construction time; every Record passed to Insert or returned from
// Retrieve is restricted to exactly these fields.
type Schema []string

func (s Schema) index(field string) (int, bool) {
	for i, f := range s {
		if f == field {
			return i, true
		}
	}
	return -1, false
}

// Record is a single row, keyed by field name. Every key must appear in the
// Coordinator's Schema.
type Record map[string]string

// encode produces the canonical byte representation of r under schema:
// fields in schema order, each as a uint32 little-endian length prefix
// followed by its UTF-8 bytes. Fields r does not set encode as a zero-length
// value, so every Record under the same schema decodes unambiguously.
func encode(schema Schema, r Record) ([]byte, error) {
	for field := range r {
		if _, ok := schema.index(field); !ok {
			return nil, errors.Wrapf(ErrUnknownField, "field %q", field)
		}
	}

	var out []byte
	var lenBuf [4]byte
	for _, field := range schema {
		v := r[field]
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(v)))
		out = append(out, lenBuf[:]...)
		out = append(out, v...)
	}
	return out, nil
}

// decode reverses encode, reconstructing a Record in schema order. Fields
// whose encoded value is empty are omitted from the returned Record.
func decode(schema Schema, data []byte) (Record, error) {
	r := make(Record, len(schema))
	off := 0
	for _, field := range schema {
		if off+4 > len(data) {
			return nil, errors.New("seal: truncated record encoding (length prefix)")
		}
		n := int(binary.LittleEndian.Uint32(data[off : off+4]))
		off += 4
		if off+n > len(data) {
			return nil, errors.New("seal: truncated record encoding (value)")
		}
		if n > 0 {
			r[field] = string(data[off : off+n])
		}
		off += n
	}
	return r, nil
}
