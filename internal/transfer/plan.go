package transfer

// minSegmentBytes keeps the fan-out from splitting small payloads into
// ranges not worth a round trip.
const minSegmentBytes = 1 << 20

// segment is one byte range of the payload. End is inclusive; an End of
// -1 means "to EOF" and is only used when the total size is unknown.
type segment struct {
	index int
	start int64
	end   int64
}

// length returns the segment's byte count, or -1 when open ended.
func (s segment) length() int64 {
	if s.end < 0 {
		return -1
	}
	return s.end - s.start + 1
}

// buildSegments splits size bytes into at most count contiguous ranges.
// The split is even with the remainder on the last segment. Unknown
// sizes and servers without range support get a single open segment.
func buildSegments(size int64, count int) []segment {
	if size <= 0 {
		return []segment{{index: 0, start: 0, end: -1}}
	}
	if count < 1 {
		count = 1
	}
	if max := size / minSegmentBytes; int64(count) > max && max > 0 {
		count = int(max)
	}
	if size < minSegmentBytes {
		count = 1
	}

	per := size / int64(count)
	segments := make([]segment, 0, count)
	var start int64
	for i := 0; i < count; i++ {
		end := start + per - 1
		if i == count-1 {
			end = size - 1
		}
		segments = append(segments, segment{index: i, start: start, end: end})
		start = end + 1
	}
	return segments
}
