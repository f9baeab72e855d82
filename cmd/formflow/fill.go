package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formflow/pkg/engine"
	"github.com/goliatone/go-formflow/pkg/tui"
)

var (
	fillTeam   string
	fillUser   string
	fillGroup  string
	fillExport bool
)

var fillCmd = &cobra.Command{
	Use:   "fill <form-id>",
	Short: "Fill and submit a request interactively",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		session, err := a.Engine.Open(ctx, engine.AppContext{
			TeamID:        fillTeam,
			UserID:        fillUser,
			SecurityGroup: fillGroup,
		}, args[0])
		if err != nil {
			return err
		}

		result, err := tui.New(tui.WithPromptDriver(tui.NewSurveyDriver(cmd.OutOrStdout()))).Fill(ctx, session)
		if errors.Is(err, tui.ErrAborted) {
			fmt.Fprintln(cmd.ErrOrStderr(), "aborted")
			return nil
		}
		if err != nil {
			return err
		}
		if !result.Submitted {
			fmt.Fprintln(cmd.OutOrStdout(), "not submitted")
		}
		if fillExport {
			_, err := session.Export(cmd.OutOrStdout())
			return err
		}
		return nil
	},
}

func init() {
	fillCmd.Flags().StringVar(&fillTeam, "team", os.Getenv("FORMFLOW_TEAM_ID"), "team id of the requester")
	fillCmd.Flags().StringVar(&fillUser, "user", os.Getenv("FORMFLOW_USER_ID"), "user id of the requester")
	fillCmd.Flags().StringVar(&fillGroup, "group", "", "security group of the requester")
	fillCmd.Flags().BoolVar(&fillExport, "export", false, "print the filled form as text when done")
}
