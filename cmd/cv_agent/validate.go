package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jonathan/cv-tailor/internal/observability"
	"github.com/jonathan/cv-tailor/internal/types"
	"github.com/jonathan/cv-tailor/internal/validation"
	"github.com/spf13/cobra"
)

var (
	validateLanguage string
	validateMaxPages int
	validateJSON     bool
)

var validateCmd = &cobra.Command{
	Use:   "validate <cv.json>",
	Short: "Validate a CV record",
	Long:  "Runs the render-readiness checks on a CV record and prints the findings. Exits non-zero when the CV has HIGH findings.",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateLanguage, "language", "en", "Output language (ISO 639-1)")
	validateCmd.Flags().IntVar(&validateMaxPages, "max-pages", validation.DefaultLimits().MaxPages, "Maximum page count")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Print the result as JSON")
	rootCmd.AddCommand(validateCmd)
}

// readCV reads and strictly decodes a CV record file.
func readCV(path string) (*types.CV, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read CV file: %w", err)
	}
	cv, err := types.DecodeCV(data)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid CV record %s: %w", path, err)
	}
	return cv, len(data), nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cv, size, err := readCV(args[0])
	if err != nil {
		return err
	}

	limits := validation.DefaultLimits()
	limits.MaxPages = validateMaxPages
	result := validation.New(limits).Validate(cv, validation.Options{
		Language:    validateLanguage,
		RecordBytes: size,
	})

	out := cmd.OutOrStdout()
	if validateJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
	} else {
		observability.NewPrinter(out).PrintValidation(result)
	}

	if !result.IsValid {
		return fmt.Errorf("validation failed: %d HIGH finding(s)", len(result.BySeverity(validation.SeverityHigh)))
	}
	return nil
}
