package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bill-buster/personal-assistant-sub001/pkg/executor"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive resolve-and-execute loop",
	Long: `Read free-text requests line by line, resolve each to a tool call,
and execute it. Prefix a line with "confirm!" to confirm a
confirmation-gated invocation. Type "exit" or press Ctrl-D to leave.`,
	RunE: runRepl,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) error {
	app, err := NewApp(cfgFile)
	if err != nil {
		return err
	}
	defer app.Close()

	cmd.Printf("assistant %s (%d tools). Type \"exit\" to leave.\n", version, app.Registry.Len())

	scanner := bufio.NewScanner(os.Stdin)
	for {
		cmd.Print("> ")
		if !scanner.Scan() {
			cmd.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		confirm := false
		if rest, ok := strings.CutPrefix(line, "confirm!"); ok {
			confirm = true
			line = strings.TrimSpace(rest)
		}

		tool, res, _ := invoke(cmd.Context(), app, line, confirm)
		printReplResult(cmd, tool, res)
	}
}

func printReplResult(cmd *cobra.Command, tool string, res executor.Result) {
	if res.OK {
		cmd.Printf("[%s] %s\n", tool, formatValue(res.Value))
		return
	}
	if res.Err.Code == "CONFIRMATION_REQUIRED" {
		cmd.Printf("[%s] needs confirmation, repeat with a confirm! prefix\n", tool)
		return
	}
	cmd.Printf("error %s: %s\n", res.Err.Code, res.Err.Message)
}

func formatValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return "ok"
	default:
		return fmt.Sprintf("%v", v)
	}
}
