package util

// Deref returns the zero value of T if p is nil
func Deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// Ref returns a reference to v
func Ref[T any](v T) *T {
	return &v
}

// SafeString returns empty string if null
func SafeString(input *string) string {
	return Deref(input)
}

// SafeBool returns false if null
func SafeBool(input *bool) bool {
	return Deref(input)
}

// RefString returns a reference to a string
func RefString(input string) *string {
	return &input
}

// RefInt32 returns a reference to an int32
func RefInt32(input int32) *int32 {
	return &input
}

// RefBool returns a reference to a bool
func RefBool(input bool) *bool {
	return &input
}

// NilIfEmpty returns nil for an empty string so optional request fields stay unset.
func NilIfEmpty(input string) *string {
	if input == "" {
		return nil
	}
	return &input
}
