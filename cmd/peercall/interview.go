package main

import (
	"fmt"

	"peercall/native/internal/api"

	"github.com/spf13/cobra"
)

var interviewCmd = &cobra.Command{
	Use:   "interview",
	Short: "Print the interview details of the room and the local user's role",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.APIURL == "" {
			return fmt.Errorf("no API URL configured (--api or PEERCALL_API_URL)")
		}
		iv, err := api.NewClient(cfg.APIURL, nil).FetchInterview(cmd.Context(), cfg.Room.Token, cfg.Room.RoomID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Room:      %s\n", iv.RoomID)
		fmt.Fprintf(out, "Status:    %s\n", iv.Status)
		if iv.ScheduledAt != "" {
			fmt.Fprintf(out, "Scheduled: %s\n", iv.ScheduledAt)
		}
		if iv.Job != nil {
			fmt.Fprintf(out, "Job:       %s\n", iv.Job.Title)
		}
		if iv.Recruiter != nil {
			fmt.Fprintf(out, "Recruiter: %s <%s>\n", iv.Recruiter.FullName, iv.Recruiter.Email)
		}
		if iv.Candidate != nil {
			fmt.Fprintf(out, "Candidate: %s <%s>\n", iv.Candidate.FullName, iv.Candidate.Email)
		}
		if role, ok := iv.RoleOf(cfg.Room.UserID); ok {
			fmt.Fprintf(out, "You are:   %s\n", role)
		} else {
			fmt.Fprintf(out, "You are:   not a participant\n")
		}
		return nil
	},
}
