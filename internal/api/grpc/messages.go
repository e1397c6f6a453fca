package grpc

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/arkilian/reindexbench/pkg/types"
)

// Request and response field names.
const (
	fieldName      = "name"
	fieldBucket    = "bucket"
	fieldSchema    = "schema"
	fieldKey       = "key"
	fieldValue     = "value"
	fieldCount     = "count"
	fieldProcessed = "processed"
	fieldRemaining = "remaining"
	fieldVersion   = "version"
	fieldIndex     = "index"
	fieldType      = "type"
	fieldUnique    = "unique"
)

func schemaToMap(schema types.BucketSchema) map[string]interface{} {
	index := make(map[string]interface{}, len(schema.Index))
	for name, f := range schema.Index {
		index[name] = map[string]interface{}{
			fieldType:   string(f.Type),
			fieldUnique: f.Unique,
		}
	}
	return map[string]interface{}{
		fieldVersion: schema.Version,
		fieldIndex:   index,
	}
}

func schemaFromMap(m map[string]interface{}) (types.BucketSchema, error) {
	version, err := intField(m, fieldVersion)
	if err != nil {
		return types.BucketSchema{}, err
	}

	schema := types.BucketSchema{Version: version, Index: map[string]types.IndexField{}}
	raw, ok := m[fieldIndex]
	if !ok || raw == nil {
		return schema, nil
	}
	index, ok := raw.(map[string]interface{})
	if !ok {
		return types.BucketSchema{}, fmt.Errorf("field %q must be an object", fieldIndex)
	}
	for name, v := range index {
		def, ok := v.(map[string]interface{})
		if !ok {
			return types.BucketSchema{}, fmt.Errorf("index field %q must be an object", name)
		}
		typ, err := stringField(def, fieldType)
		if err != nil {
			return types.BucketSchema{}, fmt.Errorf("index field %q: %w", name, err)
		}
		unique, _ := def[fieldUnique].(bool)
		schema.Index[name] = types.IndexField{Type: types.FieldType(typ), Unique: unique}
	}
	return schema, nil
}

func bucketRequest(name string, schema types.BucketSchema) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		fieldName:   name,
		fieldSchema: schemaToMap(schema),
	})
}

func putRequest(bucket, key string, value map[string]interface{}) (*structpb.Struct, error) {
	if value == nil {
		value = map[string]interface{}{}
	}
	return structpb.NewStruct(map[string]interface{}{
		fieldBucket: bucket,
		fieldKey:    key,
		fieldValue:  value,
	})
}

func reindexRequest(bucket string, count int) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		fieldBucket: bucket,
		fieldCount:  count,
	})
}

func reindexResponse(res types.ReindexResult) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		fieldProcessed: res.Processed,
		fieldRemaining: res.Remaining,
	})
}

func parseReindexResponse(s *structpb.Struct) (types.ReindexResult, error) {
	m := s.AsMap()
	processed, err := intField(m, fieldProcessed)
	if err != nil {
		return types.ReindexResult{}, err
	}
	remaining, err := intField(m, fieldRemaining)
	if err != nil {
		return types.ReindexResult{}, err
	}
	return types.ReindexResult{Processed: processed, Remaining: remaining}, nil
}

func stringField(m map[string]interface{}, name string) (string, error) {
	v, ok := m[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("field %q is required", name)
	}
	return v, nil
}

// intField reads a whole number. Struct values carry numbers as float64.
func intField(m map[string]interface{}, name string) (int, error) {
	v, ok := m[name].(float64)
	if !ok {
		return 0, fmt.Errorf("field %q must be a number", name)
	}
	if v != math.Trunc(v) || v > math.MaxInt32 || v < math.MinInt32 {
		return 0, fmt.Errorf("field %q must be a whole number, got %v", name, v)
	}
	return int(v), nil
}
