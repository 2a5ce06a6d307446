package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/opsconsole/internal/apiclient"
)

const adminPasswordEnv = "OPSCONSOLE_ADMIN_PASSWORD"

var feedbacksCmd = &cobra.Command{
	Use:   "feedbacks",
	Short: "List user feedback",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := sessionEnv(cmd)
		if err != nil {
			return err
		}
		page, size := pageFlags(cmd)

		res, err := e.api().Feedbacks(cmd.Context(), page, size)
		if err != nil {
			return err
		}

		w := newTable(cmd.OutOrStdout())
		fmt.Fprintln(w, "USER\tCREATED\tCONTENTS")
		for _, f := range res.Feedbacks {
			fmt.Fprintf(w, "%s\t%s\t%s\n", f.UserID, orDash(f.CreatedAt), oneLine(f.Contents))
		}
		_ = w.Flush()
		printPage(cmd.OutOrStdout(), page, res.TotalPages, res.TotalElements)
		return nil
	},
}

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List comment reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := sessionEnv(cmd)
		if err != nil {
			return err
		}
		page, size := pageFlags(cmd)

		res, err := e.api().Reports(cmd.Context(), page, size)
		if err != nil {
			return err
		}

		w := newTable(cmd.OutOrStdout())
		fmt.Fprintln(w, "ID\tREPORTER\tTARGET\tCREATED\tCONTENT")
		for _, r := range res.Reports {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.ReporterID, r.TargetID, r.When(), oneLine(r.Text()))
		}
		_ = w.Flush()
		printPage(cmd.OutOrStdout(), page, res.TotalPages, res.TotalElements)
		return nil
	},
}

var noticesCmd = &cobra.Command{
	Use:   "notices",
	Short: "Send push notices",
}

var noticeCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List notice categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := sessionEnv(cmd)
		if err != nil {
			return err
		}

		categories, err := e.api().Categories(cmd.Context())
		if err != nil {
			return err
		}

		w := newTable(cmd.OutOrStdout())
		fmt.Fprintln(w, "NAME\tLABEL")
		for _, c := range categories {
			fmt.Fprintf(w, "%s\t%s\n", c.Name, c.Label())
		}
		return w.Flush()
	},
}

var noticeTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a notice to the development audience",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := sessionEnv(cmd)
		if err != nil {
			return err
		}
		category, _ := cmd.Flags().GetString("category")
		subject, _ := cmd.Flags().GetString("subject")
		article, _ := cmd.Flags().GetString("article")

		if err := e.api().SendTestNotice(cmd.Context(), category, subject, article); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Test notice sent.")
		return nil
	},
}

var noticeProdCmd = &cobra.Command{
	Use:   "prod",
	Short: "Send a notice to every user",
	Long: `Send a push notice to every user.

The backend asks for the admin password again. It is taken from
--admin-password or $OPSCONSOLE_ADMIN_PASSWORD.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := sessionEnv(cmd)
		if err != nil {
			return err
		}
		title, _ := cmd.Flags().GetString("title")
		body, _ := cmd.Flags().GetString("body")
		link, _ := cmd.Flags().GetString("url")
		password, _ := cmd.Flags().GetString("admin-password")
		if password == "" {
			password = os.Getenv(adminPasswordEnv)
		}

		if err := e.api().SendProdNotice(cmd.Context(), title, body, link, password); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Notice sent to all users.")
		return nil
	},
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage scheduled alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := sessionEnv(cmd)
		if err != nil {
			return err
		}
		page, size := pageFlags(cmd)

		res, err := e.api().ScheduledAlerts(cmd.Context(), page, size)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		w := newTable(out)
		fmt.Fprintln(w, "ID\tSTATUS\tWAKE TIME\tTITLE")
		for _, a := range res.Alerts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.Status, a.DisplayTime(), oneLine(a.Title))
		}
		_ = w.Flush()
		fmt.Fprintf(out, "%d pending, %d completed, %d canceled on this page\n",
			res.CountByStatus(apiclient.AlertPending),
			res.CountByStatus(apiclient.AlertCompleted),
			res.CountByStatus(apiclient.AlertCanceled),
		)
		printPage(out, page, res.TotalPages, res.TotalElements)
		return nil
	},
}

var alertsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Schedule an alert",
	Long: `Schedule a push alert.

--at accepts "2025-03-01 09:30", "2025-03-01T09:30" or a full timestamp;
seconds are added and fractions and zone markers removed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := sessionEnv(cmd)
		if err != nil {
			return err
		}
		title, _ := cmd.Flags().GetString("title")
		content, _ := cmd.Flags().GetString("content")
		at, _ := cmd.Flags().GetString("at")

		if err := e.api().CreateScheduledAlert(cmd.Context(), title, content, at); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Alert scheduled for %s.\n", apiclient.NormalizeAlertTime(at))
		return nil
	},
}

var alertsCancelCmd = &cobra.Command{
	Use:   "cancel ID",
	Short: "Cancel a pending alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := sessionEnv(cmd)
		if err != nil {
			return err
		}
		if err := e.api().CancelScheduledAlert(cmd.Context(), apiclient.ID(args[0])); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Alert %s canceled.\n", args[0])
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{feedbacksCmd, reportsCmd, alertsListCmd} {
		c.Flags().Int("page", 0, "zero-based page number")
		c.Flags().Int("size", 10, "page size")
	}

	noticeTestCmd.Flags().String("category", "", "notice category name (required)")
	noticeTestCmd.Flags().String("subject", "", "notice subject (required)")
	noticeTestCmd.Flags().String("article", "", "article id (required)")
	for _, name := range []string{"category", "subject", "article"} {
		_ = noticeTestCmd.MarkFlagRequired(name)
	}

	noticeProdCmd.Flags().String("title", "", "notice title (required)")
	noticeProdCmd.Flags().String("body", "", "notice body (required)")
	noticeProdCmd.Flags().String("url", "", "link opened by the notice")
	noticeProdCmd.Flags().String("admin-password", "", "admin password confirmation")
	_ = noticeProdCmd.MarkFlagRequired("title")
	_ = noticeProdCmd.MarkFlagRequired("body")

	alertsCreateCmd.Flags().String("title", "", "alert title (required)")
	alertsCreateCmd.Flags().String("content", "", "alert content (required)")
	alertsCreateCmd.Flags().String("at", "", "wake time, local (required)")
	for _, name := range []string{"title", "content", "at"} {
		_ = alertsCreateCmd.MarkFlagRequired(name)
	}

	noticesCmd.AddCommand(noticeCategoriesCmd, noticeTestCmd, noticeProdCmd)
	alertsCmd.AddCommand(alertsListCmd, alertsCreateCmd, alertsCancelCmd)
	rootCmd.AddCommand(feedbacksCmd, reportsCmd, noticesCmd, alertsCmd)
}

// sessionEnv loads the environment and requires a stored token.
func sessionEnv(cmd *cobra.Command) (*env, error) {
	e, err := loadEnv(cmd)
	if err != nil {
		return nil, err
	}
	if err := e.requireSession(); err != nil {
		return nil, err
	}
	return e, nil
}

func pageFlags(cmd *cobra.Command) (page, size int) {
	page, _ = cmd.Flags().GetInt("page")
	size, _ = cmd.Flags().GetInt("size")
	return page, size
}

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
}

func printPage(out io.Writer, page, totalPages, total int) {
	if totalPages == 0 {
		fmt.Fprintf(out, "%d total\n", total)
		return
	}
	fmt.Fprintf(out, "page %d of %d, %d total\n", page+1, totalPages, total)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// oneLine collapses whitespace so multi-line text fits a table row.
func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "-"
	}
	return s
}
