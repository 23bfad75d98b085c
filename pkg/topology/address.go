package topology

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/pipeprobe/pkg/domain"
)

// Segment is one dotted component of an address, with optional list indices.
type Segment struct {
	Key     string
	Indices []int
}

// Address locates a node in a document: seg ('.' seg)*, seg = key ('[' int ']')*.
type Address []Segment

// ParseAddress parses an address such as "train.loader.datasets[2]".
func ParseAddress(s string) (Address, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%w: empty address", domain.ErrInvalidAddress)
	}

	var addr Address
	for _, part := range strings.Split(s, ".") {
		seg, err := parseSegment(part)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", domain.ErrInvalidAddress, s, err)
		}
		addr = append(addr, seg)
	}
	return addr, nil
}

func parseSegment(part string) (Segment, error) {
	open := strings.IndexByte(part, '[')
	if open < 0 {
		if part == "" || strings.ContainsRune(part, ']') {
			return Segment{}, fmt.Errorf("bad segment %q", part)
		}
		return Segment{Key: part}, nil
	}
	if open == 0 {
		return Segment{}, fmt.Errorf("segment %q has no key", part)
	}

	seg := Segment{Key: part[:open]}
	rest := part[open:]
	for rest != "" {
		if rest[0] != '[' {
			return Segment{}, fmt.Errorf("unexpected %q in segment %q", rest, part)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return Segment{}, fmt.Errorf("unclosed index in segment %q", part)
		}
		idx, err := strconv.Atoi(rest[1:end])
		if err != nil || idx < 0 {
			return Segment{}, fmt.Errorf("bad index %q in segment %q", rest[1:end], part)
		}
		seg.Indices = append(seg.Indices, idx)
		rest = rest[end+1:]
	}
	return seg, nil
}

// String renders the address in its canonical form.
func (a Address) String() string {
	var b strings.Builder
	for i, seg := range a {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.Key)
		for _, idx := range seg.Indices {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(idx))
			b.WriteByte(']')
		}
	}
	return b.String()
}

// Key returns a copy of a extended with a new key segment.
func (a Address) Key(key string) Address {
	out := make(Address, len(a), len(a)+1)
	copy(out, a)
	return append(out, Segment{Key: key})
}

// Index returns a copy of a with an index appended to its last segment.
func (a Address) Index(i int) Address {
	out := make(Address, len(a))
	copy(out, a)
	last := out[len(out)-1]
	last.Indices = append(append([]int(nil), last.Indices...), i)
	out[len(out)-1] = last
	return out
}
