package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"quicktask/client"
	"quicktask/domain"
)

func (a *app) statsCmd() *cobra.Command {
	var groupBy string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show completion statistics and productivity trends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if groupBy != client.GroupByDay && groupBy != client.GroupByWeek {
				return fmt.Errorf("--group-by must be %q or %q", client.GroupByDay, client.GroupByWeek)
			}
			owner, err := client.OwnerFromToken(a.cfg.Token)
			if err != nil {
				return fmt.Errorf("read token: %w", err)
			}
			ctx := a.context(cmd)
			stats, err := a.analytics.UserStats(ctx, owner)
			if err != nil {
				return fmt.Errorf("user stats: %w", err)
			}
			trend, err := a.analytics.ProductivityAnalysis(ctx, owner, groupBy)
			if err != nil {
				return fmt.Errorf("productivity analysis: %w", err)
			}
			if a.asJSON {
				return a.printJSON(struct {
					Stats        client.UserStats            `json:"stats"`
					Productivity client.ProductivityAnalysis `json:"productivity"`
				}{stats, trend})
			}

			fmt.Fprintf(a.out, "Total tasks: %d\nCompleted: %d (%.2f%%)\n\n", stats.TotalTasks, stats.CompletedTasks, stats.CompletionPercentage)
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PRIORITY\tTASKS")
			for _, p := range []domain.Priority{domain.PriorityHigh, domain.PriorityMed, domain.PriorityLow} {
				fmt.Fprintf(w, "%s\t%d\n", p, stats.PriorityDistribution[p])
			}
			fmt.Fprintln(w, "\nSTATUS\tTASKS")
			for _, s := range []domain.Status{domain.StatusTodo, domain.StatusInProgress, domain.StatusCompleted} {
				fmt.Fprintf(w, "%s\t%d\n", s, stats.StatusDistribution[s])
			}
			fmt.Fprintf(w, "\n%s\tTOTAL\tCREATED\tCOMPLETED\n", groupHeader(groupBy))
			for _, p := range trend.Trends {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", p.Date, p.TotalTasks, p.CreatedTasks, p.CompletedTasks)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&groupBy, "group-by", "g", client.GroupByDay, "trend bucket (day, week)")
	return cmd
}

func groupHeader(groupBy string) string {
	if groupBy == client.GroupByWeek {
		return "WEEK OF"
	}
	return "DAY"
}
