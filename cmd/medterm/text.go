package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medterm/medterm/internal/config"
	"github.com/medterm/medterm/internal/domain/terminology"
	"github.com/medterm/medterm/rules"
)

// errFindings makes the process exit non-zero when --fail-on-error is set and
// the input contained forbidden expressions.
var errFindings = errors.New("forbidden expressions found")

// loadCatalog compiles the catalog named by --catalog, then CATALOG_PATH,
// then the bundled default.
func loadCatalog(cmd *cobra.Command) (*terminology.Catalog, error) {
	path, _ := cmd.Flags().GetString("catalog")
	strict, _ := cmd.Flags().GetBool("strict")
	if path == "" {
		if cfg, err := config.Load(); err == nil {
			path = cfg.CatalogPath
		}
	}
	opts := terminology.LoadOptions{Strict: strict}
	if path == "" {
		return terminology.ParseCatalog(rules.Default(), terminology.FormatYAML, opts)
	}
	return terminology.LoadCatalogFile(path, opts)
}

func addCatalogFlags(cmd *cobra.Command) {
	cmd.Flags().String("catalog", "", "Catalog file (defaults to CATALOG_PATH, then the bundled catalog)")
	cmd.Flags().Bool("strict", false, "Reject unknown catalog keys")
}

// readInput reads the file named in args, or stdin when none is given or it is "-".
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(b), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func normalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "normalize [file]",
		Short: "Normalize a text file (or stdin) and print the result",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			nfc, _ := cmd.Flags().GetBool("nfc")
			failOnError, _ := cmd.Flags().GetBool("fail-on-error")

			catalog, err := loadCatalog(cmd)
			if err != nil {
				return err
			}
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			var opts []terminology.PipelineOption
			if nfc {
				opts = append(opts, terminology.WithNFC())
			}
			res, err := terminology.NewPipeline(catalog, opts...).Normalize(text)
			if err != nil {
				return err
			}

			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), res.FormattedText)
				if !strings.HasSuffix(res.FormattedText, "\n") {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				for _, e := range res.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", e)
				}
				for _, w := range res.Warnings {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
				}
			}

			if failOnError && res.HasErrors() {
				return errFindings
			}
			return nil
		},
	}
	addCatalogFlags(cmd)
	cmd.Flags().Bool("json", false, "Print the full result as JSON")
	cmd.Flags().Bool("nfc", false, "Apply Unicode NFC before the rules")
	cmd.Flags().Bool("fail-on-error", false, "Exit non-zero when forbidden expressions are found")
	return cmd
}

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [file]",
		Short: "Report forbidden expressions without rewriting the text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			catalog, err := loadCatalog(cmd)
			if err != nil {
				return err
			}
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			scan := catalog.ScanForbidden(text)
			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), scan); err != nil {
					return err
				}
			} else if !scan.Found {
				fmt.Fprintln(cmd.OutOrStdout(), "no forbidden expressions found")
			} else {
				for _, p := range scan.Positions {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", p.Position, p.Expression)
				}
			}
			if scan.Found {
				return errFindings
			}
			return nil
		},
	}
	addCatalogFlags(cmd)
	cmd.Flags().Bool("json", false, "Print the scan as JSON")
	return cmd
}
