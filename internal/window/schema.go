package window

// NormalizeParameters returns a copy of a tool's JSON schema in which every object schema
// carries "type", "properties" and "required", filling empty containers where they are
// missing. Completion APIs reject schemas that omit them even when empty.
func NormalizeParameters(params map[string]any) map[string]any {
	out := cloneMap(params)
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	normalizeObject(out)
	return out
}

func normalizeObject(schema map[string]any) {
	if t, _ := schema["type"].(string); t != "object" {
		if items, ok := schema["items"].(map[string]any); ok {
			schema["items"] = normalizeNested(items)
		}
		return
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok || props == nil {
		props = map[string]any{}
	}
	for name, p := range props {
		if child, ok := p.(map[string]any); ok {
			props[name] = normalizeNested(child)
		}
	}
	schema["properties"] = props
	switch schema["required"].(type) {
	case []any, []string:
	default:
		schema["required"] = []string{}
	}
}

func normalizeNested(schema map[string]any) map[string]any {
	out := cloneMap(schema)
	normalizeObject(out)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+3)
	for k, v := range m {
		if child, ok := v.(map[string]any); ok {
			v = cloneMap(child)
		}
		out[k] = v
	}
	return out
}
