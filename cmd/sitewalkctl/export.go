package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sitewalk/sitewalk/internal/editor"
)

var (
	exportPage   int
	exportFormat string
	exportOut    string
	exportWidth  float64
	exportLabels bool
)

var exportCmd = &cobra.Command{
	Use:   "export <floorplan-id>",
	Short: "Render a floorplan page with its annotations to PNG or SVG",
	Long: "Loads the floorplan, its layers, markers and calibration through the\n" +
		"API and renders the page locally. PNG output composites the page\n" +
		"background; SVG output holds the annotation overlay only.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := exportFormatFor(exportFormat, exportOut)
		if err != nil {
			return err
		}

		c := newClient()
		sess, err := editor.Open(cmd.Context(), c, args[0], editor.Options{
			Loader:        c,
			Notifier:      stderrNotifier(cmd.ErrOrStderr()),
			ViewportWidth: exportWidth,
		})
		if err != nil {
			return err
		}
		if fp := sess.Floorplan(); exportPage < 1 || exportPage > fp.PageCount {
			return fmt.Errorf("page %d out of range 1..%d", exportPage, fp.PageCount)
		}
		if exportPage != 1 {
			if err := sess.OnPageChange(cmd.Context(), exportPage); err != nil {
				return err
			}
		}
		sess.SetShowAllLabels(exportLabels)

		data, err := renderExport(cmd.Context(), sess, format)
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), exportOut, data)
	},
}

func init() {
	exportCmd.Flags().IntVarP(&exportPage, "page", "p", 1, "page number (1-based)")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "", "png or svg (default from --out extension, else png)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "-", "output file, - for stdout")
	exportCmd.Flags().Float64Var(&exportWidth, "width", editor.DefaultViewportWidth, "pixel width the page is fitted to")
	exportCmd.Flags().BoolVar(&exportLabels, "labels", true, "show labels on every marker")
}

// exportFormatFor resolves the output format from the flag or the output
// file extension.
func exportFormatFor(format, out string) (string, error) {
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(out)), ".")
		if format == "" {
			format = "png"
		}
	}
	switch format {
	case "png", "svg":
		return format, nil
	}
	return "", fmt.Errorf("unsupported export format %q (want png or svg)", format)
}

func renderExport(ctx context.Context, sess *editor.Session, format string) ([]byte, error) {
	if format == "png" {
		return sess.Export(ctx)
	}
	scene := sess.Scene()
	size := sess.Floorplan().Page(scene.Page)
	rs := sess.RenderScale()
	w := int(math.Ceil(size.Width * rs))
	h := int(math.Ceil(size.Height * rs))
	return []byte(sess.SVG(w, h)), nil
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	slog.Info("export written", slog.String("path", path), slog.Int("bytes", len(data)))
	return nil
}

// stderrNotifier prints session notices for the operator.
func stderrNotifier(w io.Writer) editor.Notifier {
	return editor.NotifierFunc(func(n editor.Notice) {
		fmt.Fprintf(w, "%s: %s\n", n.Severity, n.Message)
	})
}
