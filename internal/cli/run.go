package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bill-buster/personal-assistant-sub001/pkg/executor"
	"github.com/bill-buster/personal-assistant-sub001/pkg/permission"
)

var (
	runConfirm bool
	runDebug   bool
)

var runCmd = &cobra.Command{
	Use:   "run [text]",
	Short: "Resolve free text to a tool call and execute it",
	Long: `Resolve the given free text to a tool call and execute it.
The result is printed as JSON. Exit status is 0 on success, 2 when the
request was denied by policy or could not be routed, and 1 on internal
errors.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runConfirm, "confirm", false, "confirm a confirmation-gated invocation")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "include routing and timing metadata in the output")
	rootCmd.AddCommand(runCmd)
}

// runOutput is the JSON printed for one invocation.
type runOutput struct {
	OK    bool            `json:"ok"`
	Tool  string          `json:"tool,omitempty"`
	Value interface{}     `json:"value,omitempty"`
	Error *executor.Error `json:"error,omitempty"`
	Debug *executor.Debug `json:"debug,omitempty"`
}

func runRun(cmd *cobra.Command, args []string) error {
	app, err := NewApp(cfgFile)
	if err != nil {
		return err
	}
	defer app.Close()

	tool, res, code := invoke(cmd.Context(), app, strings.Join(args, " "), runConfirm)
	return printResult(cmd, tool, res, code)
}

// invoke routes input and executes the resolved call as the system
// agent. It returns the tool name, the execution result, and the exit
// status.
func invoke(ctx context.Context, app *App, input string, confirm bool) (string, executor.Result, int) {
	resolution, rerr := app.Router.Resolve(ctx, input)
	if rerr != nil {
		result := executor.Result{
			OK:  false,
			Err: &executor.Error{Code: rerr.Code, Message: rerr.Message},
		}
		if executor.IsPolicyCode(rerr.Code) {
			return "", result, exitPolicy
		}
		return "", result, exitInternal
	}

	if confirm {
		if resolution.Call.Args == nil {
			resolution.Call.Args = map[string]interface{}{}
		}
		resolution.Call.Args["confirm"] = true
	}

	result := app.Executor.ExecuteResolved(ctx, resolution, permission.SystemAgent())
	switch {
	case result.OK:
		return resolution.Call.Tool, result, exitOK
	case result.Err != nil && executor.IsPolicyCode(result.Err.Code):
		return resolution.Call.Tool, result, exitPolicy
	default:
		return resolution.Call.Tool, result, exitInternal
	}
}

func printResult(cmd *cobra.Command, tool string, res executor.Result, code int) error {
	out := runOutput{
		OK:    res.OK,
		Tool:  tool,
		Value: res.Value,
		Error: res.Err,
	}
	if runDebug {
		out.Debug = &res.Debug
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	cmd.Println(string(encoded))

	if code == exitOK {
		return nil
	}
	return &exitError{code: code}
}
