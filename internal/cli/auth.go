package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLoginCommand(a *app) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if username == "" {
				if username, err = a.readLine("用户名: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = a.readLine("密码: "); err != nil {
					return err
				}
			}

			user, err := a.client.Login(cmd.Context(), username, password)
			if err != nil {
				return fmt.Errorf("登录失败: %w", err)
			}
			fmt.Fprintf(a.out, "%s %s\n", okStyle.Render("已登录"), user.Name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when empty)")
	return cmd
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.client.Logout()
			fmt.Fprintln(a.out, "已退出登录")
			return nil
		},
	}
}

func newWhoamiCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(a.out, a.session.User().Name)
			return nil
		},
	}
}
