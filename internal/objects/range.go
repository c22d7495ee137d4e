package objects

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bimbel/storagegw/internal/storage"
)

var rangeRegex = regexp.MustCompile(`^bytes=(\d+)-(\d+)$`)

// ParseRange turns a Range header of the exact form "bytes=<start>-<end>" into
// a byte range. Anything else, including suffix, open-ended and multi-range
// forms or start > end, yields nil: the caller then fetches the whole object.
func ParseRange(header string) *storage.ByteRange {
	m := rangeRegex.FindStringSubmatch(strings.TrimSpace(header))
	if m == nil {
		return nil
	}
	start, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil
	}
	end, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil || start > end {
		return nil
	}
	return &storage.ByteRange{Start: start, End: end}
}
