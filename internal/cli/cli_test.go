package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV", "prod")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", filepath.Join(t.TempDir(), "planner.db"))
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("DISPLAY_WINDOW_DAYS", "14")
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// run executes the CLI with args and returns its standard output.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	register()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, "", args...)
	if err != nil {
		t.Fatalf("planner %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestTaskLifecycle(t *testing.T) {
	setupEnv(t)
	today := time.Now().UTC()
	tomorrow := today.AddDate(0, 0, 1).Format("2006-01-02")
	later := today.AddDate(0, 0, 2).Format("2006-01-02")

	if out := mustRun(t, "user", "add", "Alice"); !strings.Contains(out, `Created user "Alice"`) {
		t.Fatalf("user add: %q", out)
	}
	mustRun(t, "user", "add", "Bob")

	if out := mustRun(t, "--user", "alice", "task", "add", "Pay rent", "--due", tomorrow, "--priority", "high"); !strings.Contains(out, "Created task") {
		t.Fatalf("task add: %q", out)
	}
	out := mustRun(t, "--user", "Alice", "task", "add", "Standup", "--due", today.Format("2006-01-02"), "--repeat", "daily", "--until", later)
	if !strings.Contains(out, "Created 3 instances") {
		t.Fatalf("recurring add: %q", out)
	}

	if out := mustRun(t, "--user", "Alice", "group", "create", "Study", "Bob"); !strings.Contains(out, "2 member(s)") {
		t.Fatalf("group create: %q", out)
	}
	mustRun(t, "--user", "Bob", "task", "add", "Group work", "--group", "Study")

	out = mustRun(t, "--user", "Alice", "task", "list")
	for _, want := range []string{"Pay rent", "Standup", "Group work", "high"} {
		if !strings.Contains(out, want) {
			t.Fatalf("task list lacks %q:\n%s", want, out)
		}
	}

	var listed []taskJSON
	if err := json.Unmarshal([]byte(mustRun(t, "--user", "Alice", "task", "list", "--json")), &listed); err != nil {
		t.Fatalf("task list --json: %v", err)
	}
	if len(listed) != 5 {
		t.Fatalf("listed %d tasks, want 5: %+v", len(listed), listed)
	}
	var rentID string
	for _, task := range listed {
		switch task.Title {
		case "Pay rent":
			rentID = task.ID
		case "Group work":
			if task.Group != "Study" {
				t.Fatalf("group task group = %q", task.Group)
			}
		}
	}
	if rentID == "" {
		t.Fatalf("Pay rent missing from %+v", listed)
	}

	out, err := run(t, "n\n", "--user", "Alice", "task", "delete", rentID[:8])
	if err != nil || !strings.Contains(out, "Cancelled.") {
		t.Fatalf("declined delete: %q, %v", out, err)
	}
	if out := mustRun(t, "--user", "Alice", "task", "delete", "--yes", rentID[:8]); !strings.Contains(out, "Deleted 1 task(s)") {
		t.Fatalf("delete: %q", out)
	}
	if out := mustRun(t, "--user", "Alice", "task", "list"); strings.Contains(out, "Pay rent") {
		t.Fatalf("deleted task still listed:\n%s", out)
	}
}

func TestGroupAndUserCommands(t *testing.T) {
	setupEnv(t)
	mustRun(t, "user", "add", "Alice")
	mustRun(t, "user", "add", "Bob")
	mustRun(t, "user", "add", "Carol")

	mustRun(t, "--user", "Alice", "user", "friend", "Bob")
	out := mustRun(t, "--user", "Alice", "user", "candidates", "--friends")
	if !strings.Contains(out, "Bob") || strings.Contains(out, "Carol") {
		t.Fatalf("friend candidates:\n%s", out)
	}

	mustRun(t, "--user", "Alice", "group", "create", "Chess")
	mustRun(t, "--user", "Carol", "group", "join", "Chess")
	out = mustRun(t, "--user", "Alice", "group", "show", "Chess")
	if !strings.Contains(out, "Carol") || !strings.Contains(out, "owner") {
		t.Fatalf("group show:\n%s", out)
	}
	mustRun(t, "--user", "Carol", "group", "leave", "Chess")
	if out := mustRun(t, "--user", "Carol", "group", "list"); !strings.Contains(out, "not in any group") {
		t.Fatalf("group list after leave:\n%s", out)
	}
	if _, err := run(t, "", "--user", "Alice", "group", "leave", "Chess"); err == nil {
		t.Fatalf("owner was allowed to leave")
	}

	mustRun(t, "--user", "Carol", "user", "rename", "Caroline")
	if out := mustRun(t, "user", "list"); !strings.Contains(out, "Caroline") {
		t.Fatalf("user list after rename:\n%s", out)
	}
}

func TestViewsAndErrors(t *testing.T) {
	setupEnv(t)
	mustRun(t, "user", "add", "Alice")
	today := time.Now().UTC()
	mustRun(t, "--user", "Alice", "task", "add", "Dentist", "--due", today.Format("2006-01-02"), "--time", "9:30")

	out := mustRun(t, "--user", "Alice", "calendar")
	if !strings.Contains(out, today.Month().String()) || !strings.Contains(out, "Dentist") {
		t.Fatalf("calendar:\n%s", out)
	}
	out = mustRun(t, "--user", "Alice", "day")
	if !strings.Contains(out, "MEDIUM (1)") || !strings.Contains(out, "09:30 !") {
		t.Fatalf("day:\n%s", out)
	}
	if out := mustRun(t, "--user", "Alice", "report"); !strings.Contains(out, "Dentist") {
		t.Fatalf("report:\n%s", out)
	}

	if _, err := run(t, "", "task", "list"); err == nil || !strings.Contains(err.Error(), "--user") {
		t.Fatalf("missing user: err = %v", err)
	}
	if _, err := run(t, "", "--user", "Nobody", "task", "list"); err == nil {
		t.Fatalf("unknown user accepted")
	}
	if _, err := run(t, "", "--user", "Alice", "task", "add", "Bad", "--due", "2024-02-01", "--repeat", "daily", "--until", "2024-01-01"); err == nil {
		t.Fatalf("inverted recurrence range accepted")
	}
	if out := mustRun(t, "config"); !strings.Contains(out, "DATABASE_URL") {
		t.Fatalf("config:\n%s", out)
	}
}
