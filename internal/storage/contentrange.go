package storage

import (
	"regexp"
	"strconv"
)

var contentRangeRegex = regexp.MustCompile(`^bytes (\d+)-(\d+)/(\d+|\*)$`)

// ParseContentRange splits a "bytes start-end/total" header value.
// total is -1 when the store reports it as unknown ("*").
func ParseContentRange(v string) (start, end, total int64, ok bool) {
	m := contentRangeRegex.FindStringSubmatch(v)
	if m == nil {
		return 0, 0, 0, false
	}
	var err error
	if start, err = strconv.ParseInt(m[1], 10, 64); err != nil {
		return 0, 0, 0, false
	}
	if end, err = strconv.ParseInt(m[2], 10, 64); err != nil {
		return 0, 0, 0, false
	}
	total = -1
	if m[3] != "*" {
		if total, err = strconv.ParseInt(m[3], 10, 64); err != nil {
			return 0, 0, 0, false
		}
	}
	return start, end, total, true
}

// sizeFromContentRange returns the full object size for a ranged response,
// falling back to length when the header is absent or opaque.
func sizeFromContentRange(contentRange string, length int64) int64 {
	if contentRange == "" {
		return length
	}
	if _, _, total, ok := ParseContentRange(contentRange); ok && total >= 0 {
		return total
	}
	return -1
}
