package cli

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
)

var (
	userRef string
	rootCmd *cobra.Command

	registerOnce sync.Once
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "planner",
		Short: "Shared planner: personal and group tasks",
		Long: `Planner keeps personal and group tasks, expands recurring tasks into
dated instances and shows them as a list or a month calendar.

Settings come from environment variables, see "planner config".`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&userRef, "user", "u", os.Getenv("PLANNER_USER"), "Act as this user (ID or display name)")
}

func register() {
	registerOnce.Do(func() {
		rootCmd.AddCommand(botCmd)
		rootCmd.AddCommand(configCmd)
		rootCmd.AddCommand(taskCmd)
		rootCmd.AddCommand(calendarCmd)
		rootCmd.AddCommand(dayCmd)
		rootCmd.AddCommand(groupCmd)
		rootCmd.AddCommand(userCmd)
		rootCmd.AddCommand(reportCmd)
	})
}

// Execute runs the root command
func Execute(version string) error {
	register()

	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
