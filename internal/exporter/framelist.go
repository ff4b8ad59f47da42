package exporter

import (
	"fmt"
	"strconv"
	"strings"
)

// FrameList is a set of inclusive frame spans. The zero value contains every frame.
type FrameList struct {
	spans [][2]int
}

// ParseFrameList parses comma separated frames and spans such as "1-10,15,20-30".
// Whitespace is ignored and an empty string selects every frame.
func ParseFrameList(s string) (FrameList, error) {
	var fl FrameList
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return fl, nil
	}

	for _, part := range strings.Split(s, ",") {
		if part == "" {
			continue
		}
		span, err := parseSpan(part)
		if err != nil {
			return FrameList{}, err
		}
		fl.spans = append(fl.spans, span)
	}
	return fl, nil
}

func parseSpan(part string) ([2]int, error) {
	// A leading '-' belongs to a negative start frame.
	sep := strings.Index(part[1:], "-")
	if sep < 0 {
		f, err := strconv.Atoi(part)
		if err != nil {
			return [2]int{}, fmt.Errorf("invalid frame %q", part)
		}
		return [2]int{f, f}, nil
	}
	sep++

	start, err := strconv.Atoi(part[:sep])
	if err != nil {
		return [2]int{}, fmt.Errorf("invalid frame range %q", part)
	}
	end, err := strconv.Atoi(part[sep+1:])
	if err != nil {
		return [2]int{}, fmt.Errorf("invalid frame range %q", part)
	}
	if end < start {
		start, end = end, start
	}
	return [2]int{start, end}, nil
}

// All reports whether the list selects every frame.
func (fl FrameList) All() bool {
	return len(fl.spans) == 0
}

// Contains reports whether frame is selected.
func (fl FrameList) Contains(frame int) bool {
	if fl.All() {
		return true
	}
	for _, s := range fl.spans {
		if frame >= s[0] && frame <= s[1] {
			return true
		}
	}
	return false
}

func (fl FrameList) String() string {
	parts := make([]string, 0, len(fl.spans))
	for _, s := range fl.spans {
		if s[0] == s[1] {
			parts = append(parts, strconv.Itoa(s[0]))
			continue
		}
		parts = append(parts, fmt.Sprintf("%d-%d", s[0], s[1]))
	}
	return strings.Join(parts, ",")
}
