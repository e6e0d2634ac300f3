// Package utils holds small helpers shared across packages.
package utils

// FirstNonEmpty returns the first value that is not the empty string.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ToStringSlice keeps the string members of a decoded JSON array, e.g. a
// groups claim, and drops everything else.
func ToStringSlice(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Value dereferences v, yielding the zero value for nil.
func Value[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}

func Ptr[T any](v T) *T {
	return &v
}
