package session

// ScrollIndex returns the position of the message with the given id in the
// inverted, newest-first rendering of messages, which are ordered oldest
// first. It reports false when the id is not loaded.
//
// The index is recomputed on every call since new messages shift all
// positions. Ids are assumed unique within the loaded window.
func ScrollIndex(messages []Message, id string) (int, bool) {
	for i, m := range messages {
		if m.ID == id {
			return len(messages) - i - 1, true
		}
	}
	return 0, false
}
