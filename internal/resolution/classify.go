package resolution

import "strings"

// parseCategory extracts the routing decision from the classifier's reply.
// Matching is case-insensitive substring search; "automatic" wins when the
// reply somehow contains both tokens. A reply containing neither falls
// back to the confidence threshold.
func parseCategory(output string, confidence, threshold float64) Category {
	lowered := strings.ToLower(output)
	switch {
	case strings.Contains(lowered, string(CategoryAutomatic)):
		return CategoryAutomatic
	case strings.Contains(lowered, string(CategoryEscalated)):
		return CategoryEscalated
	case confidence >= threshold:
		return CategoryAutomatic
	default:
		return CategoryEscalated
	}
}
