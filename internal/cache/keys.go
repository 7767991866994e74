package cache

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ayahplayer/ayah/internal/ayah"
)

// KeyPrefix is the namespace of all clip keys. A clip key also serves as a
// playable URL for the audio fetcher.
const KeyPrefix = "clip:"

// Key returns the deterministic key of a clip:
//
//	clip:{reciter}:{bitrate}:{chapter:3}:{verse:3}
//
// Chapter and verse are zero padded so that chapter prefixes never collide
// (002 vs 020) and keys sort in reading order.
func Key(sel ayah.Selection, v ayah.Verse) string {
	return fmt.Sprintf("%s%s:%s:%03d:%03d", KeyPrefix, sel.ReciterID, sel.Bitrate, v.Chapter, v.InChapter)
}

// ReciterPrefix matches every clip of a reciter, any bitrate.
func ReciterPrefix(reciterID string) string {
	return KeyPrefix + reciterID + ":"
}

// SelectionPrefix matches every clip of a reciter at one bitrate.
func SelectionPrefix(sel ayah.Selection) string {
	return fmt.Sprintf("%s%s:%s:", KeyPrefix, sel.ReciterID, sel.Bitrate)
}

// ChapterPrefix matches the clips of one chapter for a selection.
func ChapterPrefix(sel ayah.Selection, chapter int) string {
	return fmt.Sprintf("%s%03d:", SelectionPrefix(sel), chapter)
}

// IsKey reports whether s lives in the clip namespace.
func IsKey(s string) bool {
	return strings.HasPrefix(s, KeyPrefix)
}

// ParseKey splits a clip key back into its selection and verse. The
// returned verse has no global number.
func ParseKey(key string) (ayah.Selection, ayah.Verse, error) {
	if !IsKey(key) {
		return ayah.Selection{}, ayah.Verse{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	parts := strings.Split(strings.TrimPrefix(key, KeyPrefix), ":")
	if len(parts) != 4 {
		return ayah.Selection{}, ayah.Verse{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	chapter, err := strconv.Atoi(parts[2])
	if err != nil {
		return ayah.Selection{}, ayah.Verse{}, fmt.Errorf("%w: chapter: %v", ErrInvalidKey, err)
	}
	verse, err := strconv.Atoi(parts[3])
	if err != nil {
		return ayah.Selection{}, ayah.Verse{}, fmt.Errorf("%w: verse: %v", ErrInvalidKey, err)
	}

	sel := ayah.Selection{ReciterID: parts[0], Bitrate: ayah.Bitrate(parts[1])}
	return sel, ayah.Verse{Chapter: chapter, InChapter: verse}, nil
}
