package ui

import (
	"context"

	"github.com/ayahplayer/ayah/internal/ayah"
	"github.com/ayahplayer/ayah/internal/playback"
)

// Player is the part of the playback orchestrator the TUI drives.
type Player interface {
	Subscribe(fn func(playback.Event)) (unsubscribe func())
	LoadChapter(ch *ayah.Chapter) error
	Status() playback.Status

	PlayAt(ctx context.Context, n int) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Toggle() error
	Stop()
	Seek(fraction float64) error

	IncreaseSpeed() float64
	DecreaseSpeed() float64
	CycleRepeat() ayah.RepeatMode
	SetContinuity(on bool) error
	SetAutoScroll(on bool) error
	MarkA() error
	MarkB() error
	ClearMarkers() error
}

var _ Player = (*playback.Orchestrator)(nil)
