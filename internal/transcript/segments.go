package transcript

// Builder accumulates streaming recognizer output. Only finalized segments are committed,
// in arrival order and without merging; the latest partial is kept for inspection only.
type Builder struct {
	segments    []string
	lastPartial string
}

// Partial records an uncommitted hypothesis. It never reaches the transcript.
func (b *Builder) Partial(text string) {
	b.lastPartial = Clean(text)
}

// Final commits a finalized segment and clears the pending partial. Blank segments are skipped.
func (b *Builder) Final(text string) {
	b.lastPartial = ""
	if text = Clean(text); text != "" {
		b.segments = append(b.segments, text)
	}
}

// Pending returns the most recent partial not yet superseded by a final.
func (b *Builder) Pending() string {
	return b.lastPartial
}

// Finalized returns committed segments only.
func (b *Builder) Finalized() []string {
	return append([]string(nil), b.segments...)
}

// Text joins the finalized segments.
func (b *Builder) Text() string {
	return Assemble(b.segments)
}

// Reset clears all state.
func (b *Builder) Reset() {
	b.segments = nil
	b.lastPartial = ""
}
