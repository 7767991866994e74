package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/samber/do/v2"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ayahplayer/ayah/internal/app"
	"github.com/ayahplayer/ayah/internal/ayah"
	"github.com/ayahplayer/ayah/internal/chapter"
	"github.com/ayahplayer/ayah/internal/download"
	"github.com/ayahplayer/ayah/internal/settings"
)

var (
	downloadAll     bool
	downloadRefetch bool

	downloadCmd = &cobra.Command{
		Use:   "download [CHAPTER[:FROM-TO]]...",
		Short: "Download verses into the offline cache",
		Long: paragraph(fmt.Sprintf(
			"\nDownload the clips of one or more chapters for the current reciter and bitrate, so they %s.\n"+
				"Press %s to pause or resume and %s to cancel.",
			keyword("play offline"), keyword("p"), keyword("q"),
		)),
		Example: paragraph("ayah download 1 36 67\nayah download 2:1-20 --bitrate 64\nayah download --all"),
		RunE:    runDownload,
	}
)

func init() {
	downloadCmd.Flags().BoolVar(&downloadAll, "all", false, "download every chapter")
	downloadCmd.Flags().BoolVar(&downloadRefetch, "refetch", false, "download clips that are already cached again")
}

func runDownload(cmd *cobra.Command, args []string) error {
	targets, err := downloadTargets(args)
	if err != nil {
		return err
	}

	injector := newContainer(func(o *app.Options) { o.Refetch = downloadRefetch })
	defer app.Shutdown(injector)

	// Flags pick the selection for this download only.
	sel, _, err := selectionFromFlags(cmd, do.MustInvoke[*settings.Store](injector).Playback())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	chapters := do.MustInvoke[*chapter.Client](injector)

	var verses []ayah.Verse
	for _, t := range targets {
		ch, err := chapters.Chapter(ctx, t.Chapter)
		if err != nil {
			return fmt.Errorf("chapter %d: %w", t.Chapter, err)
		}
		if t.From == 0 {
			verses = append(verses, ch.Verses...)
			continue
		}
		span := ch.Span(t.From, t.To)
		if len(span) == 0 {
			return fmt.Errorf("chapter %d has no verses %d-%d", t.Chapter, t.From, t.To)
		}
		verses = append(verses, span...)
	}

	manager := do.MustInvoke[*app.DownloadsHandle](injector)
	job, err := manager.Start(ctx, verses, sel)
	if err != nil {
		return err
	}
	log.Debug("Download started", "job", job.ID(), "selection", sel, "verses", len(verses))

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Downloading %s verses as %s\n", keyword(humanize.Comma(int64(len(verses)))), keyword(sel.String()))

	restore := func() {}
	if term.IsTerminal(int(os.Stdin.Fd())) { //nolint:gosec
		if r, err := watchKeys(ctx, os.Stdin, job); err != nil {
			log.Debug("Keyboard controls unavailable", "err", err)
		} else {
			restore = r
		}
	}

	s := followJob(ctx, job, out)
	restore()
	_, _ = fmt.Fprintln(out)
	printSummary(out, s)
	if len(s.Failures) > 0 {
		return fmt.Errorf("%d verses could not be downloaded", len(s.Failures))
	}
	return nil
}

// downloadTargets expands the arguments, or --all, into chapter targets.
func downloadTargets(args []string) ([]target, error) {
	if downloadAll {
		if len(args) > 0 {
			return nil, fmt.Errorf("--all cannot be combined with chapters")
		}
		return lo.Map(lo.RangeFrom(1, chapter.Count), func(n, _ int) target {
			return target{Chapter: n}
		}), nil
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("nothing to download: name a chapter or use --all")
	}

	targets := make([]target, 0, len(args))
	for _, arg := range args {
		t, err := parseTarget(arg)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// followJob redraws a progress line until the job finishes.
func followJob(ctx context.Context, job *download.Job, w io.Writer) download.Summary {
	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(30))
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	draw := func() {
		p := job.Progress()
		state := ""
		if p.State == download.JobPaused {
			state = warning(" paused")
		}
		_, _ = fmt.Fprintf(w, "\r%s %d/%d%s\x1b[K", bar.ViewAs(p.Fraction()), p.Done, p.Total, state)
	}

	for {
		select {
		case <-job.Done():
			draw()
			return job.Summary()
		case <-ctx.Done():
			job.Cancel()
			<-job.Done()
			return job.Summary()
		case <-ticker.C:
			draw()
		}
	}
}

// watchKeys puts the terminal in raw mode and maps p to pause/resume and
// q, esc or ctrl+c to cancel. The returned func restores the terminal.
func watchKeys(ctx context.Context, in *os.File, job *download.Job) (func(), error) {
	fd := int(in.Fd()) //nolint:gosec
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}

	go func() {
		buf := make([]byte, 1)
		for {
			if ctx.Err() != nil {
				return
			}
			n, err := in.Read(buf)
			if err != nil || n == 0 {
				return
			}
			switch buf[0] {
			case 'p', ' ':
				if !job.Pause() {
					job.Resume()
				}
			case 'q', 3, 27:
				job.Cancel()
				return
			}
			select {
			case <-job.Done():
				return
			default:
			}
		}
	}()

	return func() { _ = term.Restore(fd, old) }, nil
}

func printSummary(w io.Writer, s download.Summary) {
	var b strings.Builder
	switch s.State {
	case download.JobCanceled:
		b.WriteString(warning("Canceled") + " after ")
	default:
		b.WriteString(keyword("Done") + " in ")
	}
	b.WriteString(s.Elapsed.Round(time.Second).String())
	b.WriteString(subtle(fmt.Sprintf(": %d stored, %d already cached, %d failed, %d of %d attempted",
		s.Succeeded, s.Skipped, s.Failed, s.Done, s.Total)))
	_, _ = fmt.Fprintln(w, b.String())

	if len(s.Failures) == 0 {
		return
	}
	shown := lo.Map(lo.Slice(s.Failures, 0, 10), func(v ayah.Verse, _ int) string { return v.String() })
	more := ""
	if len(s.Failures) > len(shown) {
		more = fmt.Sprintf(" and %d more", len(s.Failures)-len(shown))
	}
	_, _ = fmt.Fprintf(w, "%s %s%s\n", warning("Failed:"), strings.Join(shown, ", "), more)
}
