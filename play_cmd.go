package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ayahplayer/ayah/internal/app"
	"github.com/ayahplayer/ayah/internal/ayah"
	"github.com/ayahplayer/ayah/internal/chapter"
	"github.com/ayahplayer/ayah/internal/playback"
	"github.com/ayahplayer/ayah/internal/settings"
	"github.com/ayahplayer/ayah/ui"
)

var playCmd = &cobra.Command{
	Use:     "play [CHAPTER[:VERSE]]",
	Short:   "Play a chapter, optionally starting at a verse",
	Example: paragraph("ayah play 67\nayah play 2:255 --reciter minshawi"),
	Args:    cobra.MaximumNArgs(1),
	RunE:    runPlay,
}

func init() {
	playCmd.Flags().BoolVar(&noTUI, "no-tui", false, "play without the interactive player")
}

func runPlay(cmd *cobra.Command, args []string) error {
	t := target{Chapter: 1}
	if len(args) == 1 {
		var err error
		if t, err = parseTarget(args[0]); err != nil {
			return err
		}
	}

	injector := newContainer()
	defer app.Shutdown(injector)

	ctx := cmd.Context()
	ch, err := do.MustInvoke[*chapter.Client](injector).Chapter(ctx, t.Chapter)
	if err != nil {
		return err
	}

	orch, err := do.Invoke[*app.OrchestratorHandle](injector)
	if err != nil {
		return fmt.Errorf("unable to start player: %w", err)
	}

	prefs := do.MustInvoke[*settings.Store](injector)
	sel, changed, err := selectionFromFlags(cmd, prefs.Playback())
	if err != nil {
		return err
	}
	if changed {
		if err := orch.SetSelection(sel); err != nil {
			return err
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := prefs.Watch(watchCtx, orch.ApplyPreferences); err != nil {
			log.Warn("Not watching config file", "err", err)
		}
	}()

	if noTUI || !term.IsTerminal(int(os.Stdout.Fd())) { //nolint:gosec
		return playHeadless(ctx, orch.Orchestrator, ch, t, os.Stdout)
	}

	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	cfg.Chapter = ch
	cfg.StartVerse = t.From
	cfg.EnableMouse = mouse

	p, err := ui.NewProgram(cfg, orch)
	if err != nil {
		return err
	}
	if t.To > t.From {
		_ = orch.SetMarkers(ayah.Markers{A: t.From, B: t.To})
	}
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

// playHeadless plays ch from the target verse, printing each verse as it
// starts, until playback stops, the end of the target range is passed or
// ctx is done.
func playHeadless(ctx context.Context, o *playback.Orchestrator, ch *ayah.Chapter, t target, w io.Writer) error {
	events := make(chan playback.Event, 32)
	unsubscribe := o.Subscribe(func(e playback.Event) {
		select {
		case events <- e:
		default:
		}
	})
	defer unsubscribe()

	if err := o.LoadChapter(ch); err != nil {
		return err
	}
	start := t.From
	if start == 0 {
		first, _ := ch.First()
		start = first.InChapter
	}

	_, _ = fmt.Fprintf(w, "%s %s\n", keyword(fmt.Sprintf("%d.", ch.Number)), ch.Name)
	if err := o.PlayAt(ctx, start); err != nil {
		return err
	}

	show := func(e playback.Event) {
		switch e := e.(type) {
		case playback.VerseChanged:
			_, _ = fmt.Fprintf(w, "%s %s\n", keyword("▶"), e.Verse)
		case playback.Failed:
			_, _ = fmt.Fprintf(w, "%s %s: %v\n", warning("✗"), e.Verse, e.Err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			o.Stop()
			return nil

		case e := <-events:
			if vc, ok := e.(playback.VerseChanged); ok && t.To > 0 && vc.Verse.InChapter > t.To {
				o.Stop()
				return nil
			}
			show(e)
			sc, ok := e.(playback.StateChanged)
			if !ok || (sc.State != playback.StatePaused && sc.State != playback.StateIdle) {
				continue
			}
			for {
				select {
				case e := <-events:
					show(e)
				default:
					return nil
				}
			}
		}
	}
}
