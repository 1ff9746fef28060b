package typing

import "fmt"

// FormatTypers renders display names into the conventional typing label.
// Presentation-layer helper; the aggregator itself deals only in ids.
func FormatTypers(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing…"
	case 2:
		return names[0] + " and " + names[1] + " are typing…"
	default:
		return fmt.Sprintf("%s and %d others are typing…", names[0], len(names)-1)
	}
}
