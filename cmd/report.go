package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maastricht-university/amusement-pipeline/report"
	"github.com/maastricht-university/amusement-pipeline/samplelog"
)

func newReportCmd(a *app) *cobra.Command {
	var out, format string
	cmd := &cobra.Command{
		Use:   "report <log.txt>",
		Short: "Render a sample log as an HTML or PNG chart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer in.Close()
			l, err := samplelog.Parse(in)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			if format == "" {
				format = report.FormatFromPath(out)
			}
			if out == "" {
				out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + "." + format
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := report.Render(f, l, format); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, s := range report.Segments(l) {
				fmt.Fprintf(w, "%-24s %7.1fs-%7.1fs  %.3f  (%d samples)\n", s.VideoID, s.Start, s.End, s.Mean, s.Samples)
			}
			a.log.WithField("path", out).Info("report written")
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: the log path with the format's extension)")
	cmd.Flags().StringVar(&format, "format", "", "html or png (default: from --out, else html)")
	return cmd
}
