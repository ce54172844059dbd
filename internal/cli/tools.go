package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var toolsJSON bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List registered tools",
	RunE:  runTools,
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "print the full descriptors as JSON")
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	app, err := NewApp(cfgFile)
	if err != nil {
		return err
	}
	defer app.Close()

	specs := app.Registry.List()

	if toolsJSON {
		encoded, err := json.MarshalIndent(specs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode descriptors: %w", err)
		}
		cmd.Println(string(encoded))
		return nil
	}

	for _, spec := range specs {
		params := make([]string, 0, len(spec.Parameters))
		for name := range spec.Parameters {
			params = append(params, name)
		}
		sort.Strings(params)
		cmd.Printf("%-14s %-12s %s", spec.Name, spec.Status, spec.Description)
		if len(params) > 0 {
			cmd.Printf("  (%s)", strings.Join(params, ", "))
		}
		cmd.Println()
	}
	return nil
}
