package corpus

import (
	"encoding/binary"
	"math"
)

// Hash field names for a stored vector record. The vector field name must
// match the FT index schema alias used in queries ("@vector").
const (
	fieldText    = "text"
	fieldSource  = "source"
	fieldHeading = "heading"
	fieldVector  = "vector"
)

// buildHashFields flattens a Record into HSET fields.
func buildHashFields(rec *Record) map[string]string {
	return map[string]string{
		fieldText:    rec.Text,
		fieldSource:  rec.Source,
		fieldHeading: rec.MainHeading,
		fieldVector:  vectorToBytes(rec.Embedding),
	}
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
