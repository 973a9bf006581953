package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"quicktask/domain"
)

func (a *app) listCmd() *cobra.Command {
	var status, priority, search, sortBy, sortOrder string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Long: `List tasks matching the given filters, newest first by default.

Examples:
  quicktask list --status Todo
  quicktask list --search report --sort-by priority --sort-order asc`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var partial domain.Criteria
			flags := cmd.Flags()
			if flags.Changed("status") {
				partial.Status = (*domain.Status)(&status)
			}
			if flags.Changed("priority") {
				partial.Priority = (*domain.Priority)(&priority)
			}
			if flags.Changed("search") {
				partial.Search = &search
			}
			if flags.Changed("sort-by") {
				partial.SortBy = (*domain.SortKey)(&sortBy)
			}
			if flags.Changed("sort-order") {
				partial.SortOrder = (*domain.SortOrder)(&sortOrder)
			}
			if err := a.store.SetCriteria(a.context(cmd), partial); err != nil {
				return fmt.Errorf("list tasks: %w", err)
			}
			tasks := a.store.Snapshot().Tasks
			if a.asJSON {
				return a.printJSON(domain.NewTaskList(tasks))
			}
			return a.printTasks(tasks)
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "filter by status (Todo, In Progress, Completed)")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "filter by priority (Low, Med, High)")
	cmd.Flags().StringVarP(&search, "search", "q", "", "case-insensitive title search")
	cmd.Flags().StringVar(&sortBy, "sort-by", string(domain.DefaultSortKey), "sort key (date, priority, dueDate)")
	cmd.Flags().StringVar(&sortOrder, "sort-order", string(domain.DefaultSortOrder), "sort order (asc, desc)")
	return cmd
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [id]",
		Short: "Show a single task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.api.GetTask(a.context(cmd), args[0])
			if err != nil {
				return fmt.Errorf("get task: %w", err)
			}
			if a.asJSON {
				return a.printJSON(t)
			}
			return a.printTask(t)
		},
	}
}

func (a *app) addCmd() *cobra.Command {
	var description, priority, status, due string
	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			draft := domain.TaskDraft{Title: args[0]}
			flags := cmd.Flags()
			if flags.Changed("description") {
				draft.Description = &description
			}
			if flags.Changed("priority") {
				draft.Priority = (*domain.Priority)(&priority)
			}
			if flags.Changed("status") {
				draft.Status = (*domain.Status)(&status)
			}
			if flags.Changed("due") {
				d, err := domain.ParseDueDate(due)
				if err != nil {
					return err
				}
				draft.DueDate = d
			}
			t, err := a.store.Create(a.context(cmd), draft)
			if err != nil {
				return fmt.Errorf("create task: %w", err)
			}
			if a.asJSON {
				return a.printJSON(t)
			}
			fmt.Fprintf(a.out, "Task created successfully: %s\n", t.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "priority (Low, Med, High)")
	cmd.Flags().StringVarP(&status, "status", "s", "", "status (Todo, In Progress, Completed)")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD or RFC 3339)")
	return cmd
}

func (a *app) updateCmd() *cobra.Command {
	var title, description, priority, status, due string
	var clearDue bool
	cmd := &cobra.Command{
		Use:   "update [id]",
		Short: "Change fields of a task",
		Long: `Change fields of a task. Only the flags given are sent.

Examples:
  quicktask update 0190c2d1-... --status Completed
  quicktask update 0190c2d1-... --clear-due`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch domain.TaskPatch
			flags := cmd.Flags()
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("priority") {
				patch.Priority = (*domain.Priority)(&priority)
			}
			if flags.Changed("status") {
				patch.Status = (*domain.Status)(&status)
			}
			switch {
			case clearDue && flags.Changed("due"):
				return errors.New("--due and --clear-due are mutually exclusive")
			case clearDue:
				patch.DueDateSet = true
			case flags.Changed("due"):
				d, err := domain.ParseDueDate(due)
				if err != nil {
					return err
				}
				patch.DueDate, patch.DueDateSet = d, true
			}
			if patch.Empty() {
				return errors.New("nothing to update")
			}
			t, err := a.store.Update(a.context(cmd), args[0], patch)
			if err != nil {
				return fmt.Errorf("update task: %w", err)
			}
			if a.asJSON {
				return a.printJSON(t)
			}
			return a.printTask(t)
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "new title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "new description")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "new priority (Low, Med, High)")
	cmd.Flags().StringVarP(&status, "status", "s", "", "new status (Todo, In Progress, Completed)")
	cmd.Flags().StringVar(&due, "due", "", "new due date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().BoolVar(&clearDue, "clear-due", false, "remove the due date")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete [id]",
		Aliases: []string{"rm"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.Delete(a.context(cmd), args[0]); err != nil {
				return fmt.Errorf("delete task: %w", err)
			}
			fmt.Fprintln(a.out, "Task deleted successfully")
			return nil
		},
	}
}
