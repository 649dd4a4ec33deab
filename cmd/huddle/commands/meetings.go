package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/huddlekit/huddle/internal/adapters/api"
	"github.com/huddlekit/huddle/internal/domain"
)

var (
	flagTitle       string
	flagDescription string
	flagStartsAt    string
)

// NewMeetingsCmd returns the meeting management command tree.
func NewMeetingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "meetings",
		Aliases: []string{"meeting"},
		Short:   "List and manage meetings",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List your meetings",
		RunE:  runMeetingsList,
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a meeting",
		RunE:  runMeetingsCreate,
	}
	create.Flags().StringVarP(&flagTitle, "title", "t", "", "meeting title")
	create.Flags().StringVarP(&flagDescription, "description", "d", "", "meeting description")
	create.Flags().StringVar(&flagStartsAt, "starts", "", "start time, RFC 3339 (default now)")

	show := &cobra.Command{
		Use:   "show <meeting-id>",
		Short: "Show one meeting",
		Args:  cobra.ExactArgs(1),
		RunE:  runMeetingsShow,
	}

	update := &cobra.Command{
		Use:   "update <meeting-id>",
		Short: "Update a meeting you own",
		Args:  cobra.ExactArgs(1),
		RunE:  runMeetingsUpdate,
	}
	update.Flags().StringVarP(&flagTitle, "title", "t", "", "new title")
	update.Flags().StringVarP(&flagDescription, "description", "d", "", "new description")
	update.Flags().StringVar(&flagStartsAt, "starts", "", "new start time, RFC 3339")

	del := &cobra.Command{
		Use:   "delete <meeting-id>",
		Short: "Delete a meeting you own",
		Args:  cobra.ExactArgs(1),
		RunE:  runMeetingsDelete,
	}

	cmd.AddCommand(list, create, show, update, del)
	return cmd
}

func runMeetingsList(cmd *cobra.Command, args []string) error {
	client, _, err := newAPIClient()
	if err != nil {
		return err
	}
	if _, err := requireLogin(client); err != nil {
		return err
	}

	meetings, err := client.Meetings(cmd.Context())
	if err != nil {
		return err
	}
	if len(meetings) == 0 {
		fmt.Println("No meetings")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTARTS\tOWNER")
	for _, m := range meetings {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, m.Title, formatTime(m.StartsAt), m.OwnerID)
	}
	return w.Flush()
}

func runMeetingsCreate(cmd *cobra.Command, args []string) error {
	client, _, err := newAPIClient()
	if err != nil {
		return err
	}
	if _, err := requireLogin(client); err != nil {
		return err
	}
	draft, err := buildDraft()
	if err != nil {
		return err
	}

	meeting, err := client.CreateMeeting(cmd.Context(), draft)
	if err != nil {
		return err
	}
	fmt.Printf("Created meeting %s (%q)\n", meeting.ID, meeting.Title)
	return nil
}

func runMeetingsShow(cmd *cobra.Command, args []string) error {
	client, _, err := newAPIClient()
	if err != nil {
		return err
	}
	if _, err := requireLogin(client); err != nil {
		return err
	}

	meeting, err := client.Meeting(cmd.Context(), domain.MeetingID(args[0]))
	if err != nil {
		return err
	}
	fmt.Printf("ID:          %s\n", meeting.ID)
	fmt.Printf("Title:       %s\n", meeting.Title)
	if meeting.Description != "" {
		fmt.Printf("Description: %s\n", meeting.Description)
	}
	fmt.Printf("Owner:       %s\n", meeting.OwnerID)
	fmt.Printf("Starts:      %s\n", formatTime(meeting.StartsAt))
	return nil
}

func runMeetingsUpdate(cmd *cobra.Command, args []string) error {
	client, _, err := newAPIClient()
	if err != nil {
		return err
	}
	if _, err := requireLogin(client); err != nil {
		return err
	}
	draft, err := buildDraft()
	if err != nil {
		return err
	}

	meeting, err := client.UpdateMeeting(cmd.Context(), domain.MeetingID(args[0]), draft)
	if err != nil {
		return err
	}
	fmt.Printf("Updated meeting %s (%q)\n", meeting.ID, meeting.Title)
	return nil
}

func runMeetingsDelete(cmd *cobra.Command, args []string) error {
	client, _, err := newAPIClient()
	if err != nil {
		return err
	}
	if _, err := requireLogin(client); err != nil {
		return err
	}

	id := domain.MeetingID(args[0])
	if err := client.DeleteMeeting(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Printf("Deleted meeting %s\n", id)
	return nil
}

func buildDraft() (api.MeetingDraft, error) {
	if err := domain.ValidateMeeting(flagTitle, flagDescription); err != nil {
		return api.MeetingDraft{}, err
	}
	if flagStartsAt != "" {
		if _, err := time.Parse(time.RFC3339, flagStartsAt); err != nil {
			return api.MeetingDraft{}, fmt.Errorf("bad --starts value: %w", err)
		}
	}
	return api.MeetingDraft{
		Title:       flagTitle,
		Description: flagDescription,
		StartsAt:    flagStartsAt,
	}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
