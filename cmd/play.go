package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/oplcore/ymfdi/internal/audio"
	"github.com/oplcore/ymfdi/internal/engine"
)

const defaultPatchFile = "GENMIDI.wopl"

var (
	playQuiet    bool
	playOnce     bool
	playSongNum  int
	playBufSize  int
	playGain     float64
	playRate     int
)

var playCmd = &cobra.Command{
	Use:   "play song_path [patch_path]",
	Short: "Play a MUS/MID/RMID/XMI song through the OPL3 engine",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runPlay,
}

func init() {
	playCmd.Flags().BoolVarP(&playQuiet, "quiet", "q", false, "non-interactive: play without the periodic channel display")
	playCmd.Flags().BoolVarP(&playOnce, "once", "1", false, "play once and exit instead of looping")
	playCmd.Flags().IntVarP(&playSongNum, "num", "n", 0, "song index to select in a multi-song container")
	playCmd.Flags().IntVarP(&playBufSize, "bufsize", "b", 512, "output buffer size in samples (parsed but not applied to the audio output)")
	playCmd.Flags().Float64VarP(&playGain, "gain", "g", 1.0, "linear output gain")
	playCmd.Flags().IntVarP(&playRate, "rate", "r", 49716, "output sample rate in Hz")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	songPath := args[0]
	patchPath := defaultPatchFile
	if len(args) == 2 {
		patchPath = args[1]
	}

	songData, err := os.ReadFile(songPath)
	if err != nil {
		log.Error("failed to read song", "path", songPath, "err", err)
		os.Exit(1)
	}

	eng := engine.New(4, engine.ChipOPL3)
	eng.SetGain(playGain)
	eng.SetLoop(!playOnce)

	if patchData, err := os.ReadFile(patchPath); err == nil {
		if ok, err := eng.LoadPatches(patchData); !ok {
			log.Error("failed to load patch bank", "path", patchPath, "err", err)
			os.Exit(1)
		}
	} else {
		log.Warn("no patch bank loaded; voices will play silent", "path", patchPath, "err", err)
	}

	if ok, err := eng.LoadSequence(songData); !ok {
		log.Error("failed to load song", "path", songPath, "err", err)
		os.Exit(1)
	}
	if playSongNum > 0 {
		eng.SetSongNum(playSongNum)
	}

	sink, err := audio.NewSink(eng, playRate)
	if err != nil {
		log.Error("failed to open audio output", "err", err)
		os.Exit(1)
	}
	defer sink.Close()

	if playQuiet {
		return runPlayQuiet(eng)
	}
	return runPlayInteractive(eng)
}

func runPlayQuiet(eng *engine.Engine) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	for !eng.AtEnd() {
		select {
		case <-sig:
			return nil
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil
}

// runPlayInteractive drives the same loop as runPlayQuiet but prints
// the channel table periodically; a full keyboard-driven view lives in
// cmd/manual.go's TUI.
func runPlayInteractive(eng *engine.Engine) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for !eng.AtEnd() {
		select {
		case <-sig:
			return nil
		case <-ticker.C:
			fmt.Print("\033[2J\033[H")
			fmt.Println(eng.DisplayChannels())
		}
	}
	return nil
}
