package capture

// RedactTruncated hides a sensitive header value, keeping only the first and
// last 4 characters so that operators can tell credentials apart.
//
// Values shorter than 12 characters are fully masked.
//
// Example: "Bearer abc123xyz789" -> "Bear***z789"
func RedactTruncated(value string) string {
	if value == "" {
		return ""
	}
	if len(value) < 12 {
		return "****"
	}
	return value[:4] + "***" + value[len(value)-4:]
}

// truncate caps b at max bytes. A non-positive max disables the cap.
func truncate(b []byte, max int) []byte {
	if max > 0 && len(b) > max {
		return b[:max]
	}
	return b
}
