package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/bytedance/sonic"

	"quicktask/domain"
)

const dateLayout = "2006-01-02"

func (a *app) printJSON(v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, string(data))
	return err
}

func (a *app) printTasks(tasks []domain.Task) error {
	if len(tasks) == 0 {
		_, err := fmt.Fprintln(a.out, "No tasks found")
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tPRIORITY\tSTATUS\tDUE\tCREATED")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.Title, t.Priority, t.Status, formatDue(t.DueDate), t.CreatedAt.Local().Format(dateLayout))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(a.out, "%d task(s)\n", len(tasks))
	return err
}

func (a *app) printTask(t domain.Task) error {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", t.ID)
	fmt.Fprintf(w, "Title:\t%s\n", t.Title)
	if t.Description != "" {
		fmt.Fprintf(w, "Description:\t%s\n", t.Description)
	}
	fmt.Fprintf(w, "Priority:\t%s\n", t.Priority)
	fmt.Fprintf(w, "Status:\t%s\n", t.Status)
	fmt.Fprintf(w, "Due:\t%s\n", formatDue(t.DueDate))
	fmt.Fprintf(w, "Created:\t%s\n", t.CreatedAt.Local().Format(time.RFC1123))
	fmt.Fprintf(w, "Updated:\t%s\n", t.UpdatedAt.Local().Format(time.RFC1123))
	return w.Flush()
}

func formatDue(d *time.Time) string {
	if d == nil {
		return "-"
	}
	return d.UTC().Format(dateLayout)
}
