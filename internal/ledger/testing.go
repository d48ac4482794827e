package ledger

// PositiveEntries is a test helper that counts the positive entries recorded
// for an intent when using the in-memory ledger.
func PositiveEntries(l Ledger, intentID string) int {
	mem, ok := l.(*inMemoryLedger)
	if !ok {
		return 0
	}
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	n := 0
	for _, e := range mem.entries {
		if e.IntentID == intentID && e.Delta > 0 {
			n++
		}
	}
	return n
}
