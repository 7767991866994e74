// Package audio provides the playback engine: a single audio output
// channel that loads a clip by URL, plays, pauses, seeks and changes speed,
// and reports "ended" and periodic time updates to observers.
//
// Player decodes MP3 (and WAV) clips with beep and feeds the resampled PCM
// to an oto/v3 context. Speed is applied by resampling, so pitch follows
// speed. Mock implements the same Engine for tests without an audio device.
package audio
