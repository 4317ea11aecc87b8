package main

import (
	"encoding/json"
	"fmt"

	"github.com/jonathan/cv-tailor/internal/hashing"
	"github.com/jonathan/cv-tailor/internal/observability"
	"github.com/spf13/cobra"
)

var (
	hashJSON    bool
	hashSummary bool
)

var hashCmd = &cobra.Command{
	Use:   "hash <cv.json>",
	Short: "Print section fingerprints of a CV record",
	Long:  "Prints the canonical fingerprint of every section, and of the whole record, as used for change detection.",
	Args:  cobra.ExactArgs(1),
	RunE:  runHash,
}

func init() {
	hashCmd.Flags().BoolVar(&hashJSON, "json", false, "Print fingerprints as JSON")
	hashCmd.Flags().BoolVar(&hashSummary, "summary", false, "Also print a per-section summary")
	rootCmd.AddCommand(hashCmd)
}

// hashOutput is the JSON form of the hash command.
type hashOutput struct {
	Content  string            `json:"content"`
	Sections map[string]string `json:"sections"`
}

func runHash(cmd *cobra.Command, args []string) error {
	cv, _, err := readCV(args[0])
	if err != nil {
		return err
	}
	sections, err := hashing.SectionHashes(cv)
	if err != nil {
		return fmt.Errorf("failed to hash sections: %w", err)
	}
	content, err := hashing.HashValue(cv)
	if err != nil {
		return fmt.Errorf("failed to hash record: %w", err)
	}

	out := cmd.OutOrStdout()
	if hashJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(hashOutput{Content: content, Sections: sections})
	}

	p := observability.NewPrinter(out)
	if hashSummary {
		p.PrintCVSummary(cv)
	}
	p.PrintSectionHashes(sections)
	_, _ = fmt.Fprintf(out, "content %s\n", content)
	return nil
}
