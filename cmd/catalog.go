package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/maastricht-university/amusement-pipeline/storage"
)

// catalogFile is the layout of a seed file.
type catalogFile struct {
	Videos []storage.Video `yaml:"videos"`
}

func newSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <catalog.yaml>",
		Short: "Load a video catalog into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var cat catalogFile
			if err := yaml.Unmarshal(raw, &cat); err != nil {
				return fmt.Errorf("catalog %s: %w", args[0], err)
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.SeedVideos(cmd.Context(), cat.Videos)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d videos\n", n)
			return nil
		},
	}
}

func newVideosCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "videos",
		Short: "List the catalog or change a video's review status",
	}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List catalog videos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			videos, err := st.ListVideos(cmd.Context(), status)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tDURATION\tCATEGORIES\tLINK")
			for _, v := range videos {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.ID, v.Status, v.Duration, strings.Join(v.Categories, ","), v.Link)
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&status, "status", "", "only videos with this status (n/a, approved, rejected)")

	set := &cobra.Command{
		Use:   "set-status <id> <status>",
		Short: "Approve or reject a video",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			return st.SetVideoStatus(cmd.Context(), args[0], args[1])
		},
	}

	cmd.AddCommand(list, set)
	return cmd
}

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print experiments with their totals and per-video scores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			exps, err := st.ListExperiments(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, e := range exps {
				total := "-"
				if e.TotalScore != nil {
					total = fmt.Sprintf("%.3f", *e.TotalScore)
				}
				fmt.Fprintf(tw, "experiment %d\t%s\t%s\t%s\ttotal %s\n",
					e.ID, e.SubjectName, e.Type, e.StartedAt.Format("2006-01-02 15:04"), total)
				scores, err := st.ExperimentVideos(ctx, e.ID)
				if err != nil {
					return err
				}
				for _, s := range scores {
					fmt.Fprintf(tw, "  %d\t%s\t%.3f\t%d samples\t\n", s.Position, s.VideoID, s.Score, s.Samples)
				}
			}
			return tw.Flush()
		},
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	open := func() (*storage.Store, error) {
		return storage.Open(a.cfg.Database.Path, storage.WithLogger(a.log))
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:  "up",
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				st, err := open()
				if err != nil {
					return err
				}
				defer st.Close()
				return st.MigrateUp()
			},
		},
		&cobra.Command{
			Use:  "down",
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				st, err := open()
				if err != nil {
					return err
				}
				defer st.Close()
				return st.MigrateDown()
			},
		},
		&cobra.Command{
			Use:  "version",
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				st, err := open()
				if err != nil {
					return err
				}
				defer st.Close()
				v, dirty, err := st.MigrateVersion()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%t\n", v, dirty)
				return nil
			},
		},
	)
	return cmd
}
