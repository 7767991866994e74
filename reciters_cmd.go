package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/ayahplayer/ayah/internal/app"
	"github.com/ayahplayer/ayah/internal/chapter"
	"github.com/ayahplayer/ayah/internal/reciter"
	"github.com/ayahplayer/ayah/internal/settings"
)

var (
	recitersRemote bool

	recitersCmd = &cobra.Command{
		Use:     "reciters [QUERY]",
		Aliases: []string{"reciter"},
		Short:   "List reciters, or find the one matching a name",
		Example: paragraph("ayah reciters\nayah reciters \"mishary\"\nayah reciters --remote"),
		Args:    cobra.MaximumNArgs(1),
		RunE:    runReciters,
	}
)

func init() {
	recitersCmd.Flags().BoolVar(&recitersRemote, "remote", false, "check which reciters the content provider serves")
}

func runReciters(cmd *cobra.Command, args []string) error {
	injector := newContainer()
	defer app.Shutdown(injector)

	catalog := do.MustInvoke[*reciter.Catalog](injector)
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		m, err := catalog.Lookup(args[0])
		if err != nil {
			return err
		}
		line := fmt.Sprintf("%s %s", keyword(m.Reciter.ID), m.Reciter.Name)
		if m.IsGuess() {
			line += " " + warning("(best guess)")
		} else {
			line += " " + subtle("("+m.Confidence.String()+")")
		}
		_, _ = fmt.Fprintln(out, line)
		return nil
	}

	current := settings.DefaultPlayback().Reciter
	if p := do.MustInvoke[*settings.Store](injector).Playback(); p.Reciter != "" {
		current = p.Reciter
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if !recitersRemote {
		_, _ = fmt.Fprintln(w, "\tID\tNAME\tALSO KNOWN AS")
		for _, r := range catalog.All() {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", currentMark(r.ID, current), r.ID, r.Name, strings.Join(r.Aliases, ", "))
		}
		return w.Flush()
	}

	editions, err := do.MustInvoke[*chapter.Client](injector).AudioEditions(cmd.Context())
	if err != nil {
		return err
	}
	matched := catalog.MatchEditions(editions)
	byID := make(map[string]reciter.EditionMatch, len(matched))
	for _, m := range matched {
		byID[m.Reciter.ID] = m
	}

	_, _ = fmt.Fprintln(w, "\tID\tNAME\tEDITION\tMATCH")
	for _, r := range catalog.All() {
		edition, confidence := "-", "none"
		if m, ok := byID[r.ID]; ok {
			edition, confidence = m.Edition.Identifier, m.Confidence.String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", currentMark(r.ID, current), r.ID, r.Name, edition, confidence)
	}
	return w.Flush()
}

func currentMark(id, current string) string {
	if id == current {
		return "*"
	}
	return ""
}
