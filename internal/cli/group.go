package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage groups",
}

var groupCreateCmd = &cobra.Command{
	Use:   "create NAME [MEMBER...]",
	Short: "Create a group; you are always a member",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGroupCreate,
}

var groupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your groups",
	Args:  cobra.NoArgs,
	RunE:  runGroupList,
}

var groupShowCmd = &cobra.Command{
	Use:   "show GROUP",
	Short: "Show the members of a group",
	Args:  cobra.ExactArgs(1),
	RunE:  runGroupShow,
}

var groupJoinCmd = &cobra.Command{
	Use:   "join GROUP",
	Short: "Join a group",
	Args:  cobra.ExactArgs(1),
	RunE:  runGroupJoin,
}

var groupLeaveCmd = &cobra.Command{
	Use:   "leave GROUP",
	Short: "Leave a group",
	Args:  cobra.ExactArgs(1),
	RunE:  runGroupLeave,
}

func init() {
	groupCmd.AddCommand(groupCreateCmd)
	groupCmd.AddCommand(groupListCmd)
	groupCmd.AddCommand(groupShowCmd)
	groupCmd.AddCommand(groupJoinCmd)
	groupCmd.AddCommand(groupLeaveCmd)
}

func runGroupCreate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		session, err := a.session(ctx)
		if err != nil {
			return err
		}
		memberIDs := make([]string, 0, len(args)-1)
		for _, ref := range args[1:] {
			user, err := a.lookupUser(ctx, ref)
			if err != nil {
				return err
			}
			memberIDs = append(memberIDs, user.ID)
		}
		group, err := a.services.Groups.Create(ctx, session, args[0], memberIDs...)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created group %q (%s) with %d member(s)\n", group.Name, group.ID, len(group.Members))
		return nil
	})
}

func runGroupList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		session, err := a.session(ctx)
		if err != nil {
			return err
		}
		groups, err := a.services.Groups.List(ctx, session)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(groups) == 0 {
			fmt.Fprintln(out, "You are not in any group.")
			return nil
		}
		table := newTable(out)
		fmt.Fprintln(table, "ID\tNAME\tMEMBERS")
		for _, group := range groups {
			fmt.Fprintf(table, "%s\t%s\t%d\n", group.ID, group.Name, len(group.Members))
		}
		return table.Flush()
	})
}

func runGroupShow(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		session, err := a.session(ctx)
		if err != nil {
			return err
		}
		group, err := a.services.Groups.Lookup(ctx, args[0])
		if err != nil {
			return err
		}
		detail, err := a.services.Groups.Detail(ctx, session, group.ID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%s)\n", detail.Group.Name, detail.Group.ID)
		table := newTable(out)
		for _, member := range detail.Members {
			role := "member"
			if member.IsOwner {
				role = "owner"
			}
			fmt.Fprintf(table, "  %s\t%s\t%s\n", member.UserID, member.DisplayName, role)
		}
		return table.Flush()
	})
}

func runGroupJoin(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		session, err := a.session(ctx)
		if err != nil {
			return err
		}
		group, err := a.services.Groups.Lookup(ctx, args[0])
		if err != nil {
			return err
		}
		if err := a.services.Groups.Join(ctx, session, group.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Joined %s\n", group.Name)
		return nil
	})
}

func runGroupLeave(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		session, err := a.session(ctx)
		if err != nil {
			return err
		}
		group, err := a.services.Groups.Lookup(ctx, args[0])
		if err != nil {
			return err
		}
		if err := a.services.Groups.Leave(ctx, session, group.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Left %s\n", group.Name)
		return nil
	})
}
