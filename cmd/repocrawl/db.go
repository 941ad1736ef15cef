package main

import (
	"fmt"
	"text/tabwriter"

	"repocrawl/internal/modkit/module"
	xstrings "repocrawl/internal/platform/strings"

	crawlmod "repocrawl/internal/services/crawl/module"

	"github.com/spf13/cobra"
)

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the repositories and crawl_segments tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			m, st, err := a.buildModule(ctx, false)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close(ctx) }()

			if err := module.MustPortsOf[crawlmod.Ports](m).Schema.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema applied (%s)\n", st.Dialect)
			return nil
		},
	}
}

func (a *app) statsCmd() *cobra.Command {
	var top, runs int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the stored repository count, top repositories and recent runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			m, st, err := a.buildModule(ctx, false)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close(ctx) }()

			s, err := module.MustPortsOf[crawlmod.Ports](m).Stats.Summary(ctx, top, runs)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "repositories: %d\n\n", s.Repositories)
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARS\tREPOSITORY\tLANGUAGE\tFETCHED")
			for _, r := range s.Top {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
					r.Stars, r.FullName, xstrings.Deref(r.Language, "-"), r.FetchedAt.Format("2006-01-02 15:04"))
			}
			_ = w.Flush()

			if len(s.Runs) > 0 {
				fmt.Fprintln(out)
				w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "RUN\tSTARTED\tSEGMENTS\tOK\tFAILED\tWRITTEN")
				for _, r := range s.Runs {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n",
						r.RunID, r.StartedAt.Format("2006-01-02 15:04"), r.Segments, r.OK, r.Failed, r.Written)
				}
				_ = w.Flush()
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of repositories to list")
	cmd.Flags().IntVar(&runs, "runs", 5, "number of recent runs to list")
	return cmd
}
