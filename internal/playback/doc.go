// Package playback drives verse-by-verse recitation playback.
//
// The Orchestrator owns the session state (current verse, selection, speed,
// repeat mode, markers and continuity) and sequences the Resolver, the
// Preloader and an audio.Engine. When a clip ends, the pure Decide policy
// chooses what plays next. UIs follow along by subscribing to events rather
// than polling.
package playback
