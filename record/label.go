// Package record implements record encoding and reconstruction over a
// channel store: payload chunking, tail-first chain construction and
// forward-link chain traversal.
//
// A record is serialized to JSON and split into chunks of at most ChunkSize
// bytes. Chunks are stored as linked messages: each carries a human-readable
// label ("identity [index/count]"), a payload fragment and a forward link to
// the next chunk's message identifier. Only the head (index 1) is
// discoverable by scanning channel history; the rest are reachable by link
// traversal only.
package record

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/TotoCodeFR/DaaD/errors"
)

// DefaultChunkSize keeps chunk payloads under the substrate's per-message
// limit with margin for label and link metadata.
const DefaultChunkSize = 3800

// labelRegex matches chunk labels of the form "identity [index/count]".
var labelRegex = regexp.MustCompile(`^(.+) \[(\d+)/(\d+)\]$`)

// Label formats the chunk label for the given identity and position.
func Label(identity string, index, count int) string {
	return fmt.Sprintf("%s [%d/%d]", identity, index, count)
}

// ParseLabel splits a chunk label into identity, index and count.
// Returns ErrMalformedLabel for anything that does not match the format.
func ParseLabel(label string) (identity string, index, count int, err error) {
	m := labelRegex.FindStringSubmatch(label)
	if m == nil {
		return "", 0, 0, errors.ErrMalformedLabel
	}

	index, err = strconv.Atoi(m[2])
	if err != nil {
		return "", 0, 0, errors.ErrMalformedLabel
	}
	count, err = strconv.Atoi(m[3])
	if err != nil {
		return "", 0, 0, errors.ErrMalformedLabel
	}
	if index < 1 || count < 1 || index > count {
		return "", 0, 0, errors.ErrMalformedLabel
	}

	return m[1], index, count, nil
}

// IsHead reports whether label marks the head chunk of any chain.
func IsHead(label string) bool {
	_, index, _, err := ParseLabel(label)
	return err == nil && index == 1
}

// IsHeadFor reports whether label marks the head chunk of the chain for the
// given identity.
func IsHeadFor(label, identity string) bool {
	id, index, _, err := ParseLabel(label)
	return err == nil && index == 1 && id == identity
}

// Chunk splits text into ordered substrings of at most size bytes. Every
// chunk except the last has exactly size bytes, concatenating the chunks
// reproduces text, and the chunk count is ceil(len(text)/size). Empty text
// yields a single empty chunk so every record maps to at least one message.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if text == "" {
		return []string{""}
	}

	count := (len(text) + size - 1) / size
	chunks := make([]string, 0, count)
	for start := 0; start < len(text); start += size {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}
