package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Inspect and run skills",
}

var skillsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered skills",
	Long: `List every skill found in the skills directory and in linked packages.
Skills whose manifest cannot be read are reported as warnings.`,
	Args: cobra.NoArgs,
	RunE: runSkillsList,
}

var skillsOrderCmd = &cobra.Command{
	Use:   "order",
	Short: "Show the dependency load order",
	Args:  cobra.NoArgs,
	RunE:  runSkillsOrder,
}

var skillsExecCmd = &cobra.Command{
	Use:   "exec <skill> <command> [args...]",
	Short: "Load all skills and run one skill command",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSkillsExec,
}

func init() {
	skillsCmd.AddCommand(skillsListCmd)
	skillsCmd.AddCommand(skillsOrderCmd)
	skillsCmd.AddCommand(skillsExecCmd)
	rootCmd.AddCommand(skillsCmd)
}

func runSkillsList(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	manifests, errs := a.store.Discover()
	out := cmd.OutOrStdout()

	if len(manifests) == 0 {
		fmt.Fprintln(out, "No skills found")
	} else {
		fmt.Fprintf(out, "%-20s %-10s %-8s %s\n", "NAME", "VERSION", "SOURCE", "REQUIRES")
		for _, m := range manifests {
			requires := make([]string, 0, len(m.Requires))
			for _, r := range m.Requires {
				requires = append(requires, r.String())
			}
			fmt.Fprintf(out, "%-20s %-10s %-8s %s\n", m.Name, m.Version, m.Source, strings.Join(requires, ", "))
		}
	}

	for _, de := range errs {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", de)
	}
	return nil
}

func runSkillsOrder(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	manifests, errs := a.store.Discover()
	for _, de := range errs {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", de)
	}

	plan, err := a.resolver.Order(manifests)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, m := range plan.Order {
		fmt.Fprintf(out, "%d. %s %s\n", i+1, m.Name, m.Version)
	}
	for _, name := range sortedKeys(plan.Skipped) {
		fmt.Fprintf(out, "skipped: %s: %v\n", name, plan.Skipped[name])
	}
	return nil
}

func runSkillsExec(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	l, result, err := a.loadAll(cmd.Context())
	if err != nil {
		return err
	}
	if reason, skipped := result.Skipped[args[0]]; skipped {
		return fmt.Errorf("skill %s was not loaded: %w", args[0], reason)
	}

	value, err := l.Invoke(cmd.Context(), args[0], args[1], args[2:])
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
