package provider

const (
	MaxPushTitle = 64
	MaxPushBody  = 240
)

// truncateRunes cuts s to at most limit runes without splitting a code point.
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
