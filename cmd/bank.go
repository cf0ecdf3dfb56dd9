package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/oplcore/ymfdi/internal/patchbank"
)

var bankCmd = &cobra.Command{
	Use:   "bank patch_path",
	Short: "Load a patch bank and print its instrument and percussion names",
	Args:  cobra.ExactArgs(1),
	RunE:  runBank,
}

func init() {
	rootCmd.AddCommand(bankCmd)
}

func runBank(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		log.Error("failed to read patch bank", "path", args[0], "err", err)
		os.Exit(1)
	}

	bank, err := patchbank.Load(data)
	if err != nil {
		log.Error("failed to parse patch bank", "path", args[0], "err", err)
		os.Exit(1)
	}

	fmt.Printf("format: %s\n\n", bank.Format())

	fmt.Println("Melodic programs:")
	for program := uint8(0); program < 128; program++ {
		if p := bank.Find(program, 0, false, 0); p != nil && p.Name != "" {
			fmt.Printf("  %3d  %s\n", program, p.Name)
		}
	}

	fmt.Println("\nPercussion notes:")
	for note := uint8(0); note < 128; note++ {
		if p := bank.Find(0, 0, true, note); p != nil && p.Name != "" {
			fmt.Printf("  %3d  %s\n", note, p.Name)
		}
	}

	return nil
}
