package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/greenprint/internal/services"
)

func calculateCmd(_ *globalFlags) *cobra.Command {
	var (
		file    string
		summary bool
	)
	cmd := &cobra.Command{
		Use:   "calculate",
		Short: "Compute a footprint from a survey JSON file (or stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runCalculate(in, cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "Survey JSON file, - for stdin")
	cmd.Flags().BoolVar(&summary, "summary", false, "Print the dashboard summary instead of the bare footprint")
	return cmd
}

func runCalculate(in io.Reader, out io.Writer, summary bool) error {
	var s services.Survey
	dec := json.NewDecoder(in)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return fmt.Errorf("decode survey: %w", err)
	}
	fp, err := services.NewCalculator(services.DefaultEmissionModel()).Calculate(s)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if summary {
		return enc.Encode(services.Summarize(fp, nil))
	}
	return enc.Encode(fp)
}
