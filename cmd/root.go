package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ymfdi",
	Short: "An OPL2/OPL3 MUS/MID/RMID/XMI player",
	Long: `ymfdi plays MUS, Standard MIDI, RIFF-wrapped RMID and XMI songs through a
software OPL2/OPL3 emulation, using WOPL3/OP2/GTL/TMB patch banks to map
General MIDI programs onto FM instrument settings.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
