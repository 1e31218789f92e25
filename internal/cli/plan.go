package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harun/conflux/pkg/agent"
	"github.com/harun/conflux/pkg/planner"
	"github.com/spf13/cobra"
)

var planServices []string

var planCmd = &cobra.Command{
	Use:   "plan <message>",
	Short: "Print the task plan for a message",
	Long: `Decompose a message into a task plan and print it as JSON without
executing anything. The configured language model plans when one is set,
otherwise the keyword heuristic does.`,
	Example: `  conflux plan "post the release notes to #dev-updates" --services slack,gmail`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runPlan,
}

func init() {
	planCmd.Flags().StringSliceVar(&planServices, "services", nil, "connected services (default: every plannable service)")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := commandLogger(cmd)

	var runner *agent.Runner
	if cfg.HasLLM() {
		runner, err = newRunner(cfg, log)
		if err != nil {
			return err
		}
	}

	services := planServices
	if len(services) == 0 {
		services = planner.PlannableServices()
	}

	message := strings.Join(args, " ")
	plan := newPlanner(runner, log).PlanTasks(cmd.Context(), message, services)

	out, err := json.MarshalIndent(plan.ToDict(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
