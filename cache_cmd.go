package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/ayahplayer/ayah/internal/app"
	"github.com/ayahplayer/ayah/internal/ayah"
	"github.com/ayahplayer/ayah/internal/cache"
	"github.com/ayahplayer/ayah/internal/settings"
)

var (
	cacheChapter int
	cacheLimit   int
	cacheAll     bool

	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect and prune the offline cache",
		Long: paragraph(fmt.Sprintf(
			"\nInspect the clips stored for offline playback. Narrow the scope with %s, %s and %s.",
			keyword("--reciter"), keyword("--bitrate"), keyword("--chapter"),
		)),
		Example: paragraph("ayah cache stats\nayah cache ls --chapter 36\nayah cache rm --reciter husary --bitrate 64"),
	}

	cacheStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show the size of the cache",
		Args:  cobra.NoArgs,
		RunE:  runCacheStats,
	}

	cacheCountCmd = &cobra.Command{
		Use:   "count",
		Short: "Count the cached clips in scope",
		Args:  cobra.NoArgs,
		RunE: withClipStore(func(cmd *cobra.Command, _ []string, store *cache.Store, sc scope) error {
			n, err := store.Count(sc.prefix)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		}),
	}

	cacheListCmd = &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List the cached clips in scope",
		Args:    cobra.NoArgs,
		RunE: withClipStore(func(cmd *cobra.Command, _ []string, store *cache.Store, sc scope) error {
			return listClips(cmd.OutOrStdout(), store, sc.prefix, cacheLimit)
		}),
	}

	cacheRemoveCmd = &cobra.Command{
		Use:     "rm [CHAPTER:VERSE]",
		Aliases: []string{"remove"},
		Short:   "Delete one cached clip, or every clip in scope",
		Args:    cobra.MaximumNArgs(1),
		RunE: withClipStore(func(cmd *cobra.Command, args []string, store *cache.Store, sc scope) error {
			if len(args) == 1 {
				t, err := parseTarget(args[0])
				if err != nil {
					return err
				}
				if t.From == 0 || t.To != t.From {
					return fmt.Errorf("%q does not name a single verse", args[0])
				}
				key := cache.Key(sc.sel, ayah.Verse{Chapter: t.Chapter, InChapter: t.From})
				if has, err := store.Has(key); err == nil && !has {
					return fmt.Errorf("%s is not cached", key)
				}
				if err := store.Delete(key); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", keyword(key))
				return nil
			}

			if sc.prefix == cache.KeyPrefix && !cacheAll {
				return errors.New("refusing to delete the whole cache without --all")
			}
			n, err := store.DeletePrefix(sc.prefix)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s clips.\n", keyword(humanize.Comma(int64(n))))
			return nil
		}),
	}
)

func init() {
	cacheCmd.PersistentFlags().IntVarP(&cacheChapter, "chapter", "c", 0, "limit to one chapter")
	cacheListCmd.Flags().IntVarP(&cacheLimit, "limit", "n", 50, "list at most this many clips, 0 for all")
	cacheRemoveCmd.Flags().BoolVar(&cacheAll, "all", false, "allow deleting every clip")

	cacheCmd.AddCommand(cacheStatsCmd, cacheCountCmd, cacheListCmd, cacheRemoveCmd)
}

// scope is what the cache subcommands act on.
type scope struct {
	sel    ayah.Selection
	prefix string
}

// withClipStore opens the clip store and passes the scope selected by the
// flags.
func withClipStore(fn func(cmd *cobra.Command, args []string, store *cache.Store, sc scope) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		injector := newContainer()
		defer app.Shutdown(injector)

		sc, err := cacheScope(cmd, do.MustInvoke[*settings.Store](injector).Playback())
		if err != nil {
			return err
		}
		store, err := do.Invoke[*app.ClipStoreHandle](injector)
		if err != nil {
			return fmt.Errorf("unable to open cache: %w", err)
		}
		return fn(cmd, args, store.Store, sc)
	}
}

// cacheScope maps --reciter, --bitrate and --chapter to a key prefix. A
// chapter needs a full selection, so the saved reciter or bitrate fill in
// whichever flag is missing.
func cacheScope(cmd *cobra.Command, p settings.Playback) (scope, error) {
	sel, _, err := selectionFromFlags(cmd, p)
	if err != nil {
		return scope{}, err
	}

	sc := scope{sel: sel, prefix: cache.KeyPrefix}
	flags := cmd.Flags()
	switch {
	case flags.Changed("chapter"):
		if cacheChapter < 1 {
			return scope{}, fmt.Errorf("%d is not a chapter number", cacheChapter)
		}
		sc.prefix = cache.ChapterPrefix(sel, cacheChapter)
	case flags.Changed("bitrate"):
		sc.prefix = cache.SelectionPrefix(sel)
	case flags.Changed("reciter"):
		sc.prefix = cache.ReciterPrefix(sel.ReciterID)
	}
	return sc, nil
}

func runCacheStats(cmd *cobra.Command, _ []string) error {
	injector := newContainer()
	defer app.Shutdown(injector)

	store, err := do.Invoke[*app.ClipStoreHandle](injector)
	if err != nil {
		return fmt.Errorf("unable to open cache: %w", err)
	}
	stats, err := store.Stats()
	if err != nil {
		return err
	}

	dir, _ := environment.ClipDir()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Location\t%s\n", dir)
	_, _ = fmt.Fprintf(w, "Clips\t%s\n", humanize.Comma(stats.Entries))
	_, _ = fmt.Fprintf(w, "Audio\t%s\n", humanize.Bytes(uint64(stats.PayloadBytes))) //nolint:gosec
	_, _ = fmt.Fprintf(w, "Stored\t%s\n", humanize.Bytes(uint64(stats.StoredBytes)))  //nolint:gosec
	_, _ = fmt.Fprintf(w, "On disk\t%s %s\n",
		humanize.Bytes(uint64(stats.LSMBytes+stats.VLogBytes)), //nolint:gosec
		subtle(fmt.Sprintf("(index %s, values %s)",
			humanize.Bytes(uint64(stats.LSMBytes)),  //nolint:gosec
			humanize.Bytes(uint64(stats.VLogBytes)), //nolint:gosec
		)))
	return w.Flush()
}

func listClips(out io.Writer, store *cache.Store, prefix string, limit int) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VERSE\tRECITER\tBITRATE\tSIZE\tSTORED\tWRITTEN")

	shown, total := 0, 0
	err := store.ForEach(prefix, func(e cache.Entry) error {
		total++
		if limit > 0 && shown >= limit {
			return nil
		}
		sel, v, err := cache.ParseKey(e.Key)
		if err != nil {
			return nil
		}
		shown++
		_, err = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v, sel.ReciterID, sel.Bitrate,
			humanize.Bytes(uint64(e.Size)),       //nolint:gosec
			humanize.Bytes(uint64(e.StoredSize)), //nolint:gosec
			humanize.Time(e.WrittenAt),
		)
		return err
	})
	if err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if total > shown {
		_, _ = fmt.Fprintln(out, subtle(fmt.Sprintf("%d more not shown", total-shown)))
	}
	return nil
}
