// Package main provides the entry point for the ayah CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ayahplayer/ayah/internal/app"
	"github.com/ayahplayer/ayah/internal/ayah"
	"github.com/ayahplayer/ayah/internal/chapter"
	"github.com/ayahplayer/ayah/internal/reciter"
	"github.com/ayahplayer/ayah/internal/settings"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile  string
	debug       bool
	mouse       bool
	noTUI       bool
	reciterFlag string
	bitrateFlag string
	environment settings.Env

	rootCmd = &cobra.Command{
		Use:   "ayah [CHAPTER[:VERSE]]",
		Short: "Listen to the Quran verse by verse, on the CLI",
		Long: paragraph(
			fmt.Sprintf("\nListen to the Quran %s, with repeat, A/B loops and an offline cache.", keyword("verse by verse")),
		),
		Example:          paragraph("ayah 36\nayah 2:255\nayah --reciter sudais 18:1"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: runPlay,
	}
)

// target is a chapter with an optional verse range, parsed from
// "CHAPTER", "CHAPTER:VERSE" or "CHAPTER:FROM-TO".
type target struct {
	Chapter int
	From    int
	To      int
}

func parseTarget(arg string) (target, error) {
	arg = strings.TrimSpace(arg)
	chapterPart, versePart, hasVerse := strings.Cut(arg, ":")

	n, err := strconv.Atoi(chapterPart)
	if err != nil || n < 1 || n > chapter.Count {
		return target{}, fmt.Errorf("%q is not a chapter number between 1 and %d", chapterPart, chapter.Count)
	}
	t := target{Chapter: n}
	if !hasVerse {
		return t, nil
	}

	fromPart, toPart, isRange := strings.Cut(versePart, "-")
	if t.From, err = strconv.Atoi(fromPart); err != nil || t.From < 1 {
		return target{}, fmt.Errorf("%q is not a verse number", fromPart)
	}
	t.To = t.From
	if isRange {
		if t.To, err = strconv.Atoi(toPart); err != nil || t.To < t.From {
			return target{}, fmt.Errorf("%q is not a verse range", versePart)
		}
	}
	return t, nil
}

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	// grab config values from Viper
	debug = viper.GetBool("debug")
	mouse = viper.GetBool("mouse")

	if debug || environment.Debug {
		log.SetLevel(log.DebugLevel)
	}

	if cmd.Flags().Changed("bitrate") {
		if _, err := ayah.ParseBitrate(bitrateFlag); err != nil {
			return err
		}
	}
	return nil
}

// selectionFromFlags applies --reciter and --bitrate to the saved
// selection. It reports whether the flags changed anything.
func selectionFromFlags(cmd *cobra.Command, p settings.Playback) (ayah.Selection, bool, error) {
	sel, err := p.Selection()
	if err != nil {
		sel = ayah.Selection{ReciterID: reciter.DefaultID, Bitrate: ayah.BitrateHigh}
	}

	changed := false
	if cmd.Flags().Changed("reciter") {
		m, err := reciter.Default().Lookup(reciterFlag)
		if err != nil {
			return ayah.Selection{}, false, err
		}
		if m.IsGuess() {
			fmt.Fprintln(os.Stderr, subtle(fmt.Sprintf("Using %s, the closest match for %q.", m.Reciter.Name, reciterFlag)))
		}
		sel.ReciterID = m.Reciter.ID
		changed = true
	}
	if cmd.Flags().Changed("bitrate") {
		b, err := ayah.ParseBitrate(bitrateFlag)
		if err != nil {
			return ayah.Selection{}, false, err
		}
		sel.Bitrate = b
		changed = true
	}
	return sel, changed, nil
}

func newContainer(opts ...func(*app.Options)) *do.RootScope {
	o := app.Options{
		Env:        environment,
		ConfigFile: configFile,
		Logger:     log.Default(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	return app.NewContainer(o)
}

func main() {
	closer, err := setupLog(environment.Debug)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err = rootCmd.ExecuteContext(ctx)
	stop()
	_ = closer()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	var err error
	if environment, err = settings.LoadEnv(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", configFile, "config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "write debug output to the log file")
	rootCmd.PersistentFlags().StringVarP(&reciterFlag, "reciter", "r", "", "reciter id or name (remembered when playing)")
	rootCmd.PersistentFlags().StringVarP(&bitrateFlag, "bitrate", "b", "", "audio quality: 64 or 128 (remembered when playing)")
	rootCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse support")
	_ = rootCmd.Flags().MarkHidden("mouse")
	rootCmd.Flags().BoolVar(&noTUI, "no-tui", false, "play without the interactive player")

	// Config bindings
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))

	viper.SetDefault("debug", false)
	viper.SetDefault("mouse", false)

	rootCmd.AddCommand(playCmd, downloadCmd, cacheCmd, recitersCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	dirs, err := environment.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(strings.TrimSuffix(settings.ConfigFileName, filepath.Ext(settings.ConfigFileName)))
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix(settings.AppName)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		configFile = used
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], settings.ConfigFileName)
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
