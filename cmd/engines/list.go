// Package engines implements the engine inspection commands: a table of
// configured engines and the cooldowns the worker will apply.
package engines

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ellipsesearch/visibility-worker/internal/config"
	internalengines "github.com/ellipsesearch/visibility-worker/internal/engines"
)

// Command returns the engines command group.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engines",
		Short: "Manage engine configuration",
	}
	cmd.AddCommand(listCommand())
	return cmd
}

func listCommand() *cobra.Command {
	var enginesFile string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured engines",
		RunE: func(cmd *cobra.Command, args []string) error {
			engines, err := config.LoadEngines(enginesFile)
			if err != nil {
				return fmt.Errorf("load engines: %w", err)
			}
			renderTable(engines)
			return nil
		},
	}

	cmd.Flags().StringVar(&enginesFile, "engines-file", "engines.yml", "path to engines.yml")
	return cmd
}

func renderTable(engines []config.Engine) {
	supported := make(map[string]struct{})
	for _, name := range internalengines.Supported() {
		supported[name] = struct{}{}
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "URL", "Cooldown", "Enabled", "Driver"})

	for _, engine := range engines {
		driver := "missing"
		if _, ok := supported[engine.Name]; ok {
			driver = "yes"
		}
		t.AppendRow(table.Row{
			engine.Name,
			engine.URL,
			engine.Cooldown,
			engine.Enabled,
			driver,
		})
	}

	t.Render()
}
