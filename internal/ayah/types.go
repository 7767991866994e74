package ayah

import (
	"fmt"
	"strconv"
	"strings"
)

// Verse identifies a single verse. InChapter restarts at 1 in every chapter,
// Global increases monotonically across the whole text.
type Verse struct {
	Chapter   int `json:"chapter"`
	InChapter int `json:"verse_in_chapter"`
	Global    int `json:"verse_global"`
}

// IsZero reports whether v is the zero reference.
func (v Verse) IsZero() bool {
	return v.Chapter == 0 && v.InChapter == 0
}

// String returns the conventional chapter:verse form.
func (v Verse) String() string {
	return fmt.Sprintf("%d:%d", v.Chapter, v.InChapter)
}

// Bitrate is the network quality tier of a clip.
type Bitrate string

const (
	// BitrateLow is the 64 kbps tier.
	BitrateLow Bitrate = "64"

	// BitrateHigh is the 128 kbps tier.
	BitrateHigh Bitrate = "128"
)

// ParseBitrate accepts either the tier name or its kbps value.
func ParseBitrate(s string) (Bitrate, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "64", "low":
		return BitrateLow, nil
	case "128", "high", "":
		return BitrateHigh, nil
	default:
		return "", NewError(CodeInvalidInput, fmt.Sprintf("unknown bitrate %q", s), nil)
	}
}

// Kbps returns the numeric bitrate.
func (b Bitrate) Kbps() int {
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return 128
	}
	return n
}

// Valid reports whether b is one of the known tiers.
func (b Bitrate) Valid() bool {
	return b == BitrateLow || b == BitrateHigh
}

// Selection is the reciter and quality a clip is played or downloaded with.
// It is fixed for the duration of one verse.
type Selection struct {
	ReciterID string  `json:"reciter_id"`
	Bitrate   Bitrate `json:"bitrate"`
}

// Validate checks that the selection can be used to build cache keys and
// resolver requests.
func (s Selection) Validate() error {
	if strings.TrimSpace(s.ReciterID) == "" {
		return NewError(CodeInvalidInput, "reciter id is empty", nil)
	}
	if strings.ContainsAny(s.ReciterID, ": ") {
		return NewError(CodeInvalidInput, "reciter id must not contain ':' or spaces", nil).
			WithContext("reciter", s.ReciterID)
	}
	if !s.Bitrate.Valid() {
		return NewError(CodeInvalidInput, "unknown bitrate", nil).
			WithContext("bitrate", string(s.Bitrate))
	}
	return nil
}

func (s Selection) String() string {
	return s.ReciterID + "@" + string(s.Bitrate)
}

// RepeatMode selects what happens when a verse finishes.
type RepeatMode int

const (
	// RepeatOff advances only when continuity is enabled.
	RepeatOff RepeatMode = iota

	// RepeatSingle replays the current verse forever.
	RepeatSingle

	// RepeatRange loops between the A and B markers once both are set.
	RepeatRange

	// RepeatWhole plays the chapter to the end and starts over.
	RepeatWhole
)

// String returns the string representation of the repeat mode
func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatSingle:
		return "single"
	case RepeatRange:
		return "range"
	case RepeatWhole:
		return "whole"
	default:
		return "unknown"
	}
}

// Next cycles through the modes in display order.
func (m RepeatMode) Next() RepeatMode {
	return (m + 1) % (RepeatWhole + 1)
}

// ParseRepeatMode parses the String form.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none", "":
		return RepeatOff, nil
	case "single", "one", "verse":
		return RepeatSingle, nil
	case "range", "ab", "a-b":
		return RepeatRange, nil
	case "whole", "all", "chapter":
		return RepeatWhole, nil
	default:
		return RepeatOff, NewError(CodeInvalidInput, fmt.Sprintf("unknown repeat mode %q", s), nil)
	}
}

// Markers are the A/B points of a range repeat, as verse-in-chapter
// numbers. Zero means unset. A <= B is not enforced.
type Markers struct {
	A int `json:"a,omitempty"`
	B int `json:"b,omitempty"`
}

// Complete reports whether both markers are set.
func (m Markers) Complete() bool {
	return m.A > 0 && m.B > 0
}
