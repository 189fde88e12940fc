package chunk

// TelegramMessageLimit is the maximum length of a single Telegram message.
const TelegramMessageLimit = 4096

// Split cuts text into consecutive pieces of at most limit characters
// (runes), in order, so that concatenating the result restores the input
// exactly. Empty input yields no pieces; a non-positive limit yields the
// input as a single piece.
func Split(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 {
		return []string{text}
	}
	runes := []rune(text)
	parts := make([]string, 0, (len(runes)+limit-1)/limit)
	for start := 0; start < len(runes); start += limit {
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}
