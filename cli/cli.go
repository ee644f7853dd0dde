// Package cli wires the promptline commands: running chains, batching
// them over problem sets, rendering templates, and validating
// definitions.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/promptline/promptline/config"
	"github.com/promptline/promptline/core"
	"github.com/promptline/promptline/llm"
	"github.com/promptline/promptline/logger"
	"github.com/promptline/promptline/prompt"
	"github.com/promptline/promptline/puzzle"
)

const shutdownTimeout = 30 * time.Second

var rootCmd = &cobra.Command{
	Use:   "promptline",
	Short: "Run declarative LLM prompt chains",
	Long: `Promptline executes YAML-defined chains of prompt steps against an LLM
provider, threading each step's result through a shared context.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		debug, _ := cmd.Flags().GetBool("debug")
		logger.InitLogger(debug)
	},
}

var runCmd = &cobra.Command{
	Use:   "run [chain]",
	Short: "Run a chain against the configured provider",
	Args:  cobra.ExactArgs(1),
	RunE:  runChain,
}

var batchCmd = &cobra.Command{
	Use:   "batch [chain]",
	Short: "Run a chain once per problem set in a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatch,
}

var renderCmd = &cobra.Command{
	Use:   "render [template...]",
	Short: "Compose templates with --set values and print the messages",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRender,
}

var validateCmd = &cobra.Command{
	Use:   "validate [chain]",
	Short: "Check a chain definition and its step functions",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "List the registered step functions",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range core.NewRegistry().Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a promptline config file")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	runCmd.Flags().StringArrayP("set", "s", nil, "Context override as key=value (value may be JSON)")
	runCmd.Flags().String("problem-set", "", "Problem set JSON file seeding the problem_set key")
	runCmd.Flags().StringP("output", "o", "context", "What to print: context or a context key")

	batchCmd.Flags().String("problem-sets", "", "Directory of problem set JSON files")
	batchCmd.MarkFlagRequired("problem-sets")

	renderCmd.Flags().StringArrayP("set", "s", nil, "Template variable as key=value (value may be JSON)")

	rootCmd.AddCommand(runCmd, batchCmd, renderCmd, validateCmd, stepsCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runChain(cmd *cobra.Command, args []string) error {
	flags, err := parseRunFlags(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.GetLogger()
	fsys := afero.NewOsFs()

	def, err := core.LoadChainFile(fsys, resolveChainPath(cfg.ChainsDir, args[0]))
	if err != nil {
		return err
	}
	overrides, err := buildOverrides(fsys, flags.sets, flags.problemSet)
	if err != nil {
		return err
	}

	provider, err := llm.New(cfg.LLM(), log)
	if err != nil {
		return err
	}
	composer := prompt.NewComposer(prompt.NewStoreWithFs(fsys, cfg.PromptsDir), log)
	publisher := NewCliStepPublisher(log)
	engine := core.NewEngine(core.NewRegistry(), composer, provider, publisher, log)

	execCtx, runErr := engine.Run(cmd.Context(), def, overrides)
	reportSteps(cmd, publisher, len(def.Steps))
	if runErr != nil {
		if execCtx != nil && execCtx.Len() > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "partial context keys: %s\n", strings.Join(execCtx.Keys(), ", "))
		}
		return runErr
	}
	return printOutput(cmd, execCtx, flags.output)
}

func runBatch(cmd *cobra.Command, args []string) error {
	dir, err := cmd.Flags().GetString("problem-sets")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.GetLogger()
	fsys := afero.NewOsFs()

	def, err := core.LoadChainFile(fsys, resolveChainPath(cfg.ChainsDir, args[0]))
	if err != nil {
		return err
	}
	paths, err := problemSetPaths(fsys, dir)
	if err != nil {
		return err
	}

	provider, err := llm.New(cfg.LLM(), log)
	if err != nil {
		return err
	}
	composer := prompt.NewComposer(prompt.NewStoreWithFs(fsys, cfg.PromptsDir), log)

	engine := NewBatchEngine(core.NewRegistry(), composer, provider, nil, cfg.Workers, log)
	engine.Start(cmd.Context())
	defer engine.Shutdown(shutdownTimeout)

	results := make([]chan ExecutionResult, 0, len(paths))
	for _, path := range paths {
		ps, err := puzzle.LoadProblemSet(fsys, path)
		if err != nil {
			return err
		}
		results = append(results, engine.AddRequest(def, map[string]interface{}{"problem_set": ps}))
	}

	failures := 0
	for i, ch := range results {
		res := <-ch
		if res.Err != nil {
			failures++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", paths[i], res.Err)
			continue
		}
		fmt.Fprintln(cmd.OutOrStdout(), summarizeRun(paths[i], res.Context))
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d runs failed", failures, len(paths))
	}
	return nil
}

func runRender(cmd *cobra.Command, args []string) error {
	sets, err := cmd.Flags().GetStringArray("set")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fsys := afero.NewOsFs()
	vars, err := buildOverrides(fsys, sets, "")
	if err != nil {
		return err
	}

	composer := prompt.NewComposer(prompt.NewStoreWithFs(fsys, cfg.PromptsDir), logger.GetLogger())
	messages, err := composer.Compose(args, vars)
	if err != nil {
		return err
	}
	encoded, err := yaml.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encoding messages: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(encoded))
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	def, err := core.LoadChainFile(afero.NewOsFs(), resolveChainPath(cfg.ChainsDir, args[0]))
	if err != nil {
		return err
	}
	engine := core.NewEngine(core.NewRegistry(), nil, nil, nil, logger.GetLogger())
	if err := engine.Validate(def); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "chain %q is valid (%d steps)\n", def.Name, len(def.Steps))
	return nil
}

type runFlags struct {
	sets       []string
	problemSet string
	output     string
}

func parseRunFlags(cmd *cobra.Command) (runFlags, error) {
	sets, err := cmd.Flags().GetStringArray("set")
	if err != nil {
		return runFlags{}, err
	}
	problemSet, err := cmd.Flags().GetString("problem-set")
	if err != nil {
		return runFlags{}, err
	}
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return runFlags{}, err
	}
	return runFlags{sets: sets, problemSet: problemSet, output: output}, nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// resolveChainPath accepts either a bare chain name or a path to a
// definition file.
func resolveChainPath(chainsDir, arg string) string {
	if strings.ContainsAny(arg, `/\`) || strings.HasSuffix(arg, ".yaml") || strings.HasSuffix(arg, ".yml") {
		return arg
	}
	return filepath.Join(chainsDir, arg+".yaml")
}

// buildOverrides turns --set pairs and an optional problem set file
// into context overrides.
func buildOverrides(fsys afero.Fs, sets []string, problemSetPath string) (map[string]interface{}, error) {
	overrides := make(map[string]interface{})
	for _, pair := range sets {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", pair)
		}
		overrides[key] = parseOverrideValue(value)
	}
	if problemSetPath != "" {
		ps, err := puzzle.LoadProblemSet(fsys, problemSetPath)
		if err != nil {
			return nil, err
		}
		overrides["problem_set"] = ps
	}
	return overrides, nil
}

// parseOverrideValue keeps JSON-shaped values structured and falls back
// to the raw string.
func parseOverrideValue(raw string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func problemSetPaths(fsys afero.Fs, dir string) ([]string, error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading problem set directory: %w", err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no problem sets found in %q", dir)
	}
	sort.Strings(paths)
	return paths, nil
}

func reportSteps(cmd *cobra.Command, publisher *CliStepPublisher, total int) {
	for {
		select {
		case ev := <-publisher.Steps():
			fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] %s\n", ev.Index+1, total, ev.Name)
		default:
			return
		}
	}
}

func summarizeRun(path string, execCtx *core.Context) string {
	if report, ok := execCtx.Value("evaluation_report").(*puzzle.Report); ok {
		return fmt.Sprintf("%s: %d/%d correct (%.0f%%)", path, report.Correct, report.Total, report.Score()*100)
	}
	return fmt.Sprintf("%s: completed, keys: %s", path, strings.Join(execCtx.Keys(), ", "))
}

func printOutput(cmd *cobra.Command, execCtx *core.Context, output string) error {
	if output == "" || output == "context" {
		return printJSON(cmd, execCtx.Snapshot())
	}
	value, ok := execCtx.Get(output)
	if !ok {
		return fmt.Errorf("context has no key %q", output)
	}
	if s, isString := value.(string); isString {
		fmt.Fprintln(cmd.OutOrStdout(), s)
		return nil
	}
	return printJSON(cmd, value)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}
