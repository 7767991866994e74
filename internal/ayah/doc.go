// Package ayah contains the shared vocabulary of the player: verse
// references, chapters, recitation selections, repeat modes and the error
// taxonomy. It has no dependencies on the other internal packages so that
// cache, resolve, audio, playback and download can all import it.
package ayah
