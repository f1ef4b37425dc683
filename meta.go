package mapping

import "reflect"

// MergeMeta deep-merges the free-form _meta block of incoming into base.
// Keys of both are kept; where both values are maps they are merged
// recursively, otherwise the incoming value replaces the base one. It never
// fails and never modifies its arguments.
func MergeMeta(base, incoming map[string]interface{}) map[string]interface{} {
	if len(incoming) == 0 {
		return copyMeta(base)
	}
	out := make(map[string]interface{}, len(base)+len(incoming))
	for k, v := range base {
		out[k] = copyMetaValue(v)
	}
	for k, v := range incoming {
		inMap, inIsMap := v.(map[string]interface{})
		baseMap, baseIsMap := out[k].(map[string]interface{})
		if inIsMap && baseIsMap {
			out[k] = MergeMeta(baseMap, inMap)
			continue
		}
		out[k] = copyMetaValue(v)
	}
	return out
}

func copyMeta(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = copyMetaValue(v)
	}
	return out
}

func copyMetaValue(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		return copyMeta(x)
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = copyMetaValue(e)
		}
		return out
	}
	return v
}

// normalizeMeta converts decoded documents into the map/slice/scalar shape
// _meta is kept in, so that equal blocks compare equal whichever codec
// decoded them.
func normalizeMeta(path string, v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case nil, string, bool:
		return x, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			n, err := normalizeMeta(joinPath(path, k), e)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			ks, ok := k.(string)
			if !ok {
				return nil, definitionErrorf(path, "non-string key [%v] in _meta", k)
			}
			n, err := normalizeMeta(joinPath(path, ks), e)
			if err != nil {
				return nil, err
			}
			out[ks] = n
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			n, err := normalizeMeta(path, e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}
	if f, ok := toFloat64(v); ok {
		return f, nil
	}
	return nil, definitionErrorf(path, "unsupported _meta value of type %T", v)
}

func equalMeta(a, b map[string]interface{}) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
