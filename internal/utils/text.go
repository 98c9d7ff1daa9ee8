package utils

// Truncate bounds s to max bytes. Prompts and audit rows never carry
// unbounded driver text.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}
