package models

// BuildSnapshot routes an entity's attributes into the tracked and
// first-insert-only sets according to the configured tracked-attribute list.
// attrs holds the string-valued attributes eligible for tracking; extra holds
// attributes that are never trackable (floats, counters). The same routing is
// applied when building an incoming snapshot and when reading a stored
// version, so comparisons always see like against like.
func BuildSnapshot(businessKey string, attrs map[string]string, extra map[string]any, tracked []string) DimensionSnapshot {
	trackedSet := make(map[string]bool, len(tracked))
	for _, name := range tracked {
		trackedSet[name] = true
	}

	t := make(map[string]string, len(tracked))
	e := make(map[string]any, len(attrs)+len(extra))
	for k, v := range attrs {
		if trackedSet[k] {
			t[k] = v
		} else {
			e[k] = v
		}
	}
	for k, v := range extra {
		e[k] = v
	}

	return DimensionSnapshot{BusinessKey: businessKey, Tracked: t, Extra: e}
}

// Attr returns the named attribute from the tracked set, falling back to a
// string-valued extra. Missing attributes return "".
func Attr(tracked map[string]string, extra map[string]any, name string) string {
	if v, ok := tracked[name]; ok {
		return v
	}
	if v, ok := extra[name].(string); ok {
		return v
	}
	return ""
}

// ExtraInt returns the named integer extra, or 0 when absent.
func ExtraInt(extra map[string]any, name string) int {
	switch v := extra[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// ExtraFloat returns the named float extra, or 0 when absent.
func ExtraFloat(extra map[string]any, name string) float64 {
	switch v := extra[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
