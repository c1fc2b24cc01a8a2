package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/smart-daily/dailychat/internal/model"
)

func newSessionsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"ls"},
		Short:   "List chat sessions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			sessions, err := a.client.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, renderSessions(sessions, model.NoSession))
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a chat session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			if err := a.client.DeleteSession(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "已删除会话 %d\n", id)
			return nil
		},
	})
	return cmd
}

func parseSessionID(s string) (model.SessionID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return model.NoSession, fmt.Errorf("无效的会话编号 %q", s)
	}
	return model.SessionID(id), nil
}
