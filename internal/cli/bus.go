package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var busCmd = &cobra.Command{
	Use:   "bus",
	Short: "Inspect the event bus",
}

var busTopicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Load all skills and list the topics they subscribe to",
	Args:  cobra.NoArgs,
	RunE:  runBusTopics,
}

func init() {
	busCmd.AddCommand(busTopicsCmd)
	rootCmd.AddCommand(busCmd)
}

func runBusTopics(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	l, _, err := a.loadAll(cmd.Context())
	if err != nil {
		return err
	}

	bus := l.Runtime().Bus()
	out := cmd.OutOrStdout()
	topics := bus.Topics()
	if len(topics) == 0 {
		fmt.Fprintln(out, "No subscriptions")
		return nil
	}
	for _, topic := range topics {
		fmt.Fprintf(out, "%-30s %d\n", topic, bus.SubscriberCount(topic))
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
