package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users and friends",
}

var userAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Register a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserAdd,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE:  runUserList,
}

var userRenameCmd = &cobra.Command{
	Use:   "rename NAME",
	Short: "Change your display name",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserRename,
}

var userFriendCmd = &cobra.Command{
	Use:   "friend USER",
	Short: "Add a friend",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserFriend,
}

var userCandidatesCmd = &cobra.Command{
	Use:   "candidates [SEARCH]",
	Short: "List users you can add to a group",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runUserCandidates,
}

func init() {
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userRenameCmd)
	userCmd.AddCommand(userFriendCmd)
	userCmd.AddCommand(userCandidatesCmd)

	userCandidatesCmd.Flags().Bool("friends", false, "Only friends")
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		user, err := a.services.Users.Create(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created user %q (%s)\n", user.DisplayName, user.ID)
		return nil
	})
}

func runUserList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		users, err := a.services.Users.List(ctx)
		if err != nil {
			return err
		}
		table := newTable(cmd.OutOrStdout())
		fmt.Fprintln(table, "ID\tNAME\tTELEGRAM")
		for _, user := range users {
			telegram := "-"
			if user.TelegramID != nil {
				telegram = fmt.Sprint(*user.TelegramID)
				if user.Username != "" {
					telegram += " @" + user.Username
				}
			}
			fmt.Fprintf(table, "%s\t%s\t%s\n", user.ID, user.DisplayName, telegram)
		}
		return table.Flush()
	})
}

func runUserRename(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		session, err := a.session(ctx)
		if err != nil {
			return err
		}
		if err := a.services.Users.Rename(ctx, session, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Renamed to %q\n", strings.TrimSpace(args[0]))
		return nil
	})
}

func runUserFriend(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		session, err := a.session(ctx)
		if err != nil {
			return err
		}
		friend, err := a.lookupUser(ctx, args[0])
		if err != nil {
			return err
		}
		if err := a.services.Users.AddFriend(ctx, session, friend.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s as a friend\n", friend.DisplayName)
		return nil
	})
}

func runUserCandidates(cmd *cobra.Command, args []string) error {
	friendsOnly, _ := cmd.Flags().GetBool("friends")
	search := ""
	if len(args) == 1 {
		search = args[0]
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		session, err := a.session(ctx)
		if err != nil {
			return err
		}
		users, err := a.services.Users.Candidates(ctx, session, search, friendsOnly)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(users) == 0 {
			fmt.Fprintln(out, "No matching users.")
			return nil
		}
		table := newTable(out)
		for _, user := range users {
			fmt.Fprintf(table, "%s\t%s\n", user.ID, user.DisplayName)
		}
		return table.Flush()
	})
}
