package accumulate

// TopicState tracks topic segmentation during a replay. Messages fold
// into the current segment; a boundary flushes the segment under the
// current topic name and starts a fresh one.
type TopicState struct {
	// Topics holds detected topic titles in first-seen order, no
	// duplicates.
	Topics []string

	// Current is the active topic title; empty before the first
	// boundary.
	Current string

	// ByTopic holds flushed segments keyed by topic title.
	ByTopic map[string][]Message

	segment *DedupList[Message]
}

// NewTopicState returns empty segmentation state.
func NewTopicState() *TopicState {
	return &TopicState{
		ByTopic: make(map[string][]Message),
		segment: NewDedupList[Message](),
	}
}

// Fold adds a message to the current segment, deduplicated by key.
func (t *TopicState) Fold(key string, m Message) {
	t.segment.Add(key, m)
}

// SegmentLen returns the size of the unflushed current segment.
func (t *TopicState) SegmentLen() int { return t.segment.Len() }

// OnBoundary records a topic transition: the current segment is flushed
// under the current title (skipped when no topic is active yet), the
// new title is appended to Topics unless already present, and the
// segment restarts empty.
func (t *TopicState) OnBoundary(title string) {
	if t.Current != "" {
		t.ByTopic[t.Current] = t.segment.Items()
	}

	known := false
	for _, existing := range t.Topics {
		if existing == title {
			known = true
			break
		}
	}
	if !known {
		t.Topics = append(t.Topics, title)
	}

	t.Current = title
	t.segment = NewDedupList[Message]()
}

// Flush closes out the active segment at end of replay so the last
// topic's messages are available for summarization.
func (t *TopicState) Flush() {
	if t.Current != "" && t.segment.Len() > 0 {
		t.ByTopic[t.Current] = t.segment.Items()
	}
}
