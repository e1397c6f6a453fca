package bucketstore

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/golang/snappy"

	"github.com/arkilian/reindexbench/pkg/types"
)

// indexEntry is one (field, value) pair to be written to index_entries.
type indexEntry struct {
	field  string
	value  string
	unique bool
}

// encodeValue serializes a record value as snappy-compressed JSON.
func encodeValue(value map[string]interface{}) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

// decodeValue reverses encodeValue. Numbers decode as float64.
func decodeValue(data []byte) (map[string]interface{}, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress value: %w", err)
	}
	var value map[string]interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return value, nil
}

// indexEntries computes the index entries of value under schema.
// In strict mode a type mismatch is returned as a fieldTypeError; otherwise the
// mismatching field is left unindexed.
func indexEntries(schema types.BucketSchema, value map[string]interface{}, strict bool) ([]indexEntry, error) {
	var entries []indexEntry
	for _, name := range schema.FieldNames() {
		field := schema.Index[name]
		v, ok := value[name]
		if !ok || v == nil {
			continue
		}
		if !field.Type.Matches(v) {
			if strict {
				return nil, &fieldTypeError{field: name, want: field.Type, got: v}
			}
			continue
		}
		entries = append(entries, indexEntry{field: name, value: indexKey(v), unique: field.Unique})
	}
	return entries, nil
}

// indexKey renders an index value in the form stored in index_entries.
func indexKey(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	default:
		// Integer kinds render identically to their float64 form for values
		// that round-trip through JSON.
		f, err := strconv.ParseFloat(fmt.Sprint(x), 64)
		if err != nil {
			return fmt.Sprint(x)
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

type fieldTypeError struct {
	field string
	want  types.FieldType
	got   interface{}
}

func (e *fieldTypeError) Error() string {
	return fmt.Sprintf("field %q expects %s, got %T", e.field, e.want, e.got)
}
