package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/civisight/portal/pkg/auth"
	"github.com/civisight/portal/pkg/coordinator"
	"github.com/civisight/portal/pkg/dashboard"
)

func loginCmd(opts *options) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newClient(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if password == "" {
				password = os.Getenv("PORTAL_PASSWORD")
			}
			if email == "" || password == "" {
				return errors.New("--email and --password (or PORTAL_PASSWORD) are required")
			}
			sess, err := c.store.Login(cmd.Context(), email, password)
			if err != nil {
				return errors.Wrap(err, "login failed")
			}
			if err := auth.SaveSession(c.sessionPath, sess); err != nil {
				return err
			}
			name := email
			if sess.User != nil && sess.User.Name != "" {
				name = sess.User.Name
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s until %s\n", name, sess.ExpiresAt.Local().Format(time.RFC1123))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account e-mail")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func logoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newClient(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := os.Remove(c.sessionPath); err != nil && !os.IsNotExist(err) {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func countiesCmd(opts *options) *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "counties",
		Short: "List counties with their task counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newClient(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := c.load(cmd.Context()); err != nil {
				return err
			}
			c.view.SetCountySearch(search)
			counties := c.view.FilteredCounties()
			if opts.asJSON {
				return writeJSON(cmd.OutOrStdout(), counties)
			}
			tw := newTable(cmd.OutOrStdout(), "ID", "NAME", "REGION", "POPULATION", "TASKS")
			for _, county := range counties {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", county.ID, county.Name, county.Region, county.Population, county.TaskCount)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "only counties whose name contains this text")
	return cmd
}

func tasksCmd(opts *options) *cobra.Command {
	var sortMode, countyID string
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks across counties, or of one county",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newClient(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := c.view.SetSortMode(coordinator.SortMode(sortMode)); err != nil {
				return err
			}
			if err := c.load(cmd.Context()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if countyID != "" {
				if err := c.view.SelectCounty(countyID); err != nil {
					return err
				}
				county, _ := c.view.SelectedCounty()
				if opts.asJSON {
					return writeJSON(out, county.Tasks)
				}
				tw := newTable(out, "ID", "TITLE", "DEADLINE", "PRIORITY", "STATUS", "ASSIGNED")
				for _, t := range county.Tasks {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", t.Key(), t.Title, formatDate(t.Deadline),
						t.Priority, t.Status, strings.Join(t.AssignedTo, ","))
				}
				return tw.Flush()
			}

			tasks := c.view.Tasks()
			if opts.asJSON {
				return writeJSON(out, tasks)
			}
			tw := newTable(out, "TITLE", "DEADLINE", "PRIORITY", "STATUS", "COUNTIES")
			for _, agg := range tasks {
				names := make([]string, len(agg.Counties))
				for i, ref := range agg.Counties {
					names[i] = ref.Name
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", agg.Task.Title, formatDate(agg.Task.Deadline),
					agg.Task.Priority, agg.Task.Status, strings.Join(names, ", "))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&sortMode, "sort", string(coordinator.SortByDeadline), "order: deadline or counties")
	cmd.Flags().StringVar(&countyID, "county", "", "show the tasks of one county")
	return cmd
}

// taskFlags binds the new-task form to command flags.
type taskFlags struct {
	title       string
	description string
	deadline    string
	priority    string
	assignees   []string
	reminder    string
}

func (f *taskFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "task title")
	cmd.Flags().StringVar(&f.description, "description", "", "task description")
	cmd.Flags().StringVar(&f.deadline, "deadline", "", "deadline as YYYY-MM-DD")
	cmd.Flags().StringVar(&f.priority, "priority", "medium", "low, medium or high")
	cmd.Flags().StringSliceVar(&f.assignees, "assignee", nil, "assignee e-mail or user id (repeatable)")
	cmd.Flags().StringVar(&f.reminder, "reminder", "", "reminder frequency: Daily, Weekly or Monthly")
}

func (f *taskFlags) fill(form *dashboard.TaskForm) {
	form.Title = f.title
	form.Description = f.description
	form.Deadline = f.deadline
	form.Priority = f.priority
	form.AssignedTo = f.assignees
	form.ReminderFrequency = f.reminder
}

func createCmd(opts *options) *cobra.Command {
	var countyID string
	fields := &taskFlags{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task in one county",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newClient(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := c.load(cmd.Context()); err != nil {
				return err
			}
			if err := c.view.SelectCounty(countyID); err != nil {
				return err
			}
			fields.fill(c.view.Form())
			p, err := c.view.SubmitTask(cmd.Context())
			if err != nil {
				return err
			}
			task, err := p.Wait(cmd.Context())
			if err != nil {
				return err
			}
			if opts.asJSON {
				return writeJSON(cmd.OutOrStdout(), task)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created task %s in %s\n", task.ID, countyID)
			return nil
		},
	}
	cmd.Flags().StringVar(&countyID, "county", "", "county id")
	_ = cmd.MarkFlagRequired("county")
	fields.register(cmd)
	return cmd
}

func createGlobalCmd(opts *options) *cobra.Command {
	var countyIDs []string
	fields := &taskFlags{}
	cmd := &cobra.Command{
		Use:   "create-global",
		Short: "Create the same task in several counties",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newClient(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := c.load(cmd.Context()); err != nil {
				return err
			}
			for _, id := range countyIDs {
				c.view.ToggleGlobalCounty(strings.TrimSpace(id))
			}
			fields.fill(c.view.Form())
			gp, err := c.view.SubmitGlobalTask(cmd.Context())
			if err != nil {
				return err
			}
			res, err := gp.Wait(cmd.Context())
			if err != nil {
				return err
			}
			if opts.asJSON {
				if err := writeJSON(cmd.OutOrStdout(), res.Confirmed); err != nil {
					return err
				}
			} else {
				for _, id := range sortedKeys(res.Confirmed) {
					fmt.Fprintf(cmd.OutOrStdout(), "Created task %s in %s\n", res.Confirmed[id].ID, id)
				}
			}
			if len(res.Failed) == 0 {
				return nil
			}
			for _, id := range sortedKeys(res.Failed) {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", id, coordinator.UserMessage(res.Failed[id]))
			}
			return errors.Errorf("%d of %d counties failed", len(res.Failed), len(gp.ByCounty))
		},
	}
	cmd.Flags().StringSliceVar(&countyIDs, "counties", nil, "county ids (comma separated or repeated)")
	_ = cmd.MarkFlagRequired("counties")
	fields.register(cmd)
	return cmd
}

func deleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newClient(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := c.load(cmd.Context()); err != nil {
				return err
			}
			p, err := c.view.DeleteTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if _, err := p.Wait(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s from %s\n", args[0], p.CountyID)
			return nil
		},
	}
}

func newTable(w io.Writer, headers ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	return tw
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
