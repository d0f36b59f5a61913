package accumulate

// DedupList is an ordered collection that drops duplicates by key.
// Encounter order of first occurrences is preserved.
type DedupList[T any] struct {
	seen  map[string]struct{}
	items []T
}

// NewDedupList returns an empty deduplicated list.
func NewDedupList[T any]() *DedupList[T] {
	return &DedupList[T]{seen: make(map[string]struct{})}
}

// Add appends v unless key was already seen. Reports whether v was added.
func (l *DedupList[T]) Add(key string, v T) bool {
	if _, ok := l.seen[key]; ok {
		return false
	}
	l.seen[key] = struct{}{}
	l.items = append(l.items, v)
	return true
}

// Items returns the collected values in first-seen order.
func (l *DedupList[T]) Items() []T { return l.items }

// Len returns the number of collected values.
func (l *DedupList[T]) Len() int { return len(l.items) }

// Reset empties the list and its seen set.
func (l *DedupList[T]) Reset() {
	l.seen = make(map[string]struct{})
	l.items = nil
}
