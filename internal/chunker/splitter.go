package chunker

import (
	"strings"
	"unicode/utf8"
)

// span is a half-open byte range into the source text. Every splitting stage
// works on spans so that chunk content is always a contiguous slice of the
// original text: offsets stay valid, preview and commit agree byte-for-byte,
// and trimming overlap prefixes reconstructs the input exactly.
type span struct {
	start, end int
}

func (s span) len() int { return s.end - s.start }

// segment is the shared segmentation primitive. It splits text[lo:hi] on
// blank-line paragraph boundaries, further splits any paragraph exceeding the
// chunk size on sentence-terminal punctuation, then greedily packs the units
// into chunks with overlap seeding and forward-merging of undersized chunks.
func segment(text string, lo, hi int, opts Options) []span {
	units := paragraphUnits(text, lo, hi)
	refined := make([]span, 0, len(units))
	for _, u := range units {
		if u.len() > opts.ChunkSize {
			refined = append(refined, sentenceUnits(text, u.start, u.end)...)
		} else {
			refined = append(refined, u)
		}
	}
	return packUnits(text, refined, opts)
}

// paragraphUnits tiles [lo,hi) into paragraph spans. A new paragraph starts
// at a non-blank line that follows at least one blank line; blank lines stay
// attached to the preceding unit so the spans cover the region with no gaps.
func paragraphUnits(text string, lo, hi int) []span {
	if lo >= hi {
		return nil
	}
	var units []span
	unitStart := lo
	prevBlank := false

	for offset := lo; offset < hi; {
		lineEnd := strings.IndexByte(text[offset:hi], '\n')
		var next int
		if lineEnd < 0 {
			next = hi
			lineEnd = hi
		} else {
			lineEnd += offset
			next = lineEnd + 1
		}
		blank := strings.TrimSpace(text[offset:lineEnd]) == ""

		if !blank && prevBlank && offset > unitStart {
			units = append(units, span{unitStart, offset})
			unitStart = offset
		}
		prevBlank = blank
		offset = next
	}
	units = append(units, span{unitStart, hi})
	return units
}

// sentenceTerminal reports whether r ends a sentence. Covers ASCII and CJK
// terminal punctuation, matching the conventions the corpus documents use.
func sentenceTerminal(r rune) bool {
	switch r {
	case '!', '?', ';', '。', '！', '？', '；':
		return true
	}
	return false
}

// sentenceUnits tiles [lo,hi) into sentence spans. A cut is placed right
// after terminal punctuation; an ASCII period only counts when followed by
// whitespace or end of region, which skips decimals like 3.14. If no boundary
// is found the whole region stays one unit; an oversized unit is emitted whole
// rather than truncated.
func sentenceUnits(text string, lo, hi int) []span {
	var units []span
	unitStart := lo
	for i := lo; i < hi; {
		r, size := utf8.DecodeRuneInString(text[i:hi])
		cut := false
		if sentenceTerminal(r) {
			cut = true
		} else if r == '.' {
			if i+size >= hi {
				cut = true
			} else {
				next, _ := utf8.DecodeRuneInString(text[i+size : hi])
				cut = next == ' ' || next == '\n' || next == '\r' || next == '\t'
			}
		}
		i += size
		if cut && i < hi {
			units = append(units, span{unitStart, i})
			unitStart = i
		}
	}
	if unitStart < hi {
		units = append(units, span{unitStart, hi})
	}
	return units
}

// packUnits greedily accumulates contiguous units into chunk spans. When
// adding the next unit would push a non-empty buffer past ChunkSize, the
// buffer is emitted and the next one is seeded with the last Overlap
// characters of the emitted chunk. The trailing buffer is always emitted. A
// single unit longer than ChunkSize joins the current seed and is emitted
// whole, never truncated, even past MaxChunkSize. Afterwards undersized
// chunks are merged forward, final chunk excepted.
func packUnits(text string, units []span, opts Options) []span {
	if len(units) == 0 {
		return nil
	}

	var out []span
	cur := span{start: units[0].start, end: units[0].start}
	buffered := 0

	for _, u := range units {
		if buffered > 0 && u.end-cur.start > opts.ChunkSize {
			out = append(out, cur)
			seed := cur.end - opts.Overlap
			if seed < cur.start {
				seed = cur.start
			}
			// The seed must not split a multi-byte rune.
			for seed > cur.start && !utf8.RuneStart(text[seed]) {
				seed--
			}
			cur = span{start: seed, end: u.start}
			buffered = 0
		}
		cur.end = u.end
		buffered++
	}
	out = append(out, cur)

	return mergeUndersized(out, opts)
}

// mergeUndersized merges any chunk shorter than MinChunkSize forward into its
// successor. The document's final chunk is kept standalone regardless of
// size.
func mergeUndersized(spans []span, opts Options) []span {
	if opts.MinChunkSize <= 0 || len(spans) < 2 {
		return spans
	}
	out := make([]span, 0, len(spans))
	i := 0
	for i < len(spans) {
		s := spans[i]
		j := i + 1
		for j < len(spans) && s.len() < opts.MinChunkSize {
			s.end = spans[j].end
			j++
		}
		out = append(out, s)
		i = j
	}
	return out
}
