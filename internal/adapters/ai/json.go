package ai

// DeleteNoneValues removes null members from JSON objects, recursing into nested
// objects and arrays. Nulls inside arrays are kept so positions stay stable.
func DeleteNoneValues(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if val == nil {
				continue
			}
			out[k] = DeleteNoneValues(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = DeleteNoneValues(val)
		}
		return out
	default:
		return v
	}
}

// cleanSchema strips nulls from a tool parameter schema.
func cleanSchema(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}
	return DeleteNoneValues(schema).(map[string]interface{})
}
