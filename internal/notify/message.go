package notify

// truncate caps s at max characters, marking the cut with an ellipsis, so
// chat APIs with hard content limits do not reject the whole message.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
