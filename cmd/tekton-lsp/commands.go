package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/uri"
	"go.uber.org/zap"

	"github.com/tektoncd/tekton-lsp/internal/builder"
	"github.com/tektoncd/tekton-lsp/internal/config"
	"github.com/tektoncd/tekton-lsp/internal/formatter"
	"github.com/tektoncd/tekton-lsp/internal/logger"
	"github.com/tektoncd/tekton-lsp/internal/lsp"
	"github.com/tektoncd/tekton-lsp/internal/metrics"
	"github.com/tektoncd/tekton-lsp/internal/validator"
	"github.com/tektoncd/tekton-lsp/internal/workspace"
)

var errIssues = errors.New("issues found")

var (
	writeFormatted bool
	bundleOutput   string
	bundleSet      map[string]string

	rootCmd = &cobra.Command{
		Use:           "tekton-lsp",
		Short:         "Language server and tooling for Tekton pipeline definitions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runLSP,
	}

	lspCmd = &cobra.Command{
		Use:   "lsp",
		Short: "Serve the language server protocol over stdio",
		Args:  cobra.NoArgs,
		RunE:  runLSP,
	}

	checkCmd = &cobra.Command{
		Use:   "check <files...>",
		Short: "Validate Tekton YAML files and print their diagnostics",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCheck,
	}

	fmtCmd = &cobra.Command{
		Use:   "fmt [-w] <files...>",
		Short: "Format Tekton YAML files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runFmt,
	}

	bundleCmd = &cobra.Command{
		Use:   "bundle [-o file] [--set key=value] <files...>",
		Short: "Merge Tekton files into one multi-document stream, dependencies first",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runBundle,
	}

	initCmd = &cobra.Command{
		Use:   "init <name>",
		Short: "Scaffold a Task, a Pipeline and a " + config.FileName,
		Args:  cobra.ExactArgs(1),
		RunE:  runInit,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			logger.Println("tekton-lsp", lsp.Version)
		},
	}
)

func init() {
	fmtCmd.Flags().BoolVarP(&writeFormatted, "write", "w", false, "write the result to the file instead of stdout")
	bundleCmd.Flags().StringVarP(&bundleOutput, "output", "o", "", "write the bundle to a file instead of stdout")
	bundleCmd.Flags().StringToStringVar(&bundleSet, "set", nil, "set the namespace (namespace=<ns>) or add a label on every resource")
	rootCmd.AddCommand(lspCmd, checkCmd, fmtCmd, bundleCmd, initCmd, versionCmd)
}

// stdio joins stdin and stdout into the stream the server reads and writes.
type stdio struct {
	io.Reader
	io.Writer
}

func (stdio) Close() error {
	return errors.Join(os.Stdin.Close(), os.Stdout.Close())
}

func loadConfig() (*config.Config, string) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		logger.Printf("Ignoring %s: %v", config.FileName, err)
		cfg = config.Default()
	}
	return cfg, cwd
}

func runLSP(cmd *cobra.Command, args []string) error {
	cfg, _ := loadConfig()
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting", zap.String("version", lsp.Version))
	s := lsp.NewServer(log, metrics.New())
	return s.Serve(ctx, jsonrpc2.NewStream(stdio{Reader: os.Stdin, Writer: os.Stdout}))
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, _ := loadConfig()
	cfg.Index.Scan = false
	ws, err := workspace.New(workspace.Options{Config: cfg})
	if err != nil {
		return err
	}
	defer ws.Close()

	// Every file is open before diagnostics are read, so references
	// between them resolve.
	files := make(map[string]string, len(args))
	for _, file := range args {
		content, err := os.ReadFile(file)
		if err != nil {
			logger.Printf("Error reading %s: %v", file, err)
			continue
		}
		abs, err := filepath.Abs(file)
		if err != nil {
			abs = file
		}
		u := string(uri.File(abs))
		if _, err := ws.OpenDocument(u, "yaml", 1, string(content)); err != nil {
			logger.Printf("Error opening %s: %v", file, err)
			continue
		}
		files[file] = u
	}

	issues, errs := 0, 0
	for _, file := range args {
		u, ok := files[file]
		if !ok {
			errs++
			continue
		}
		diags, err := ws.GetDiagnostics(u)
		if err != nil {
			return err
		}
		for _, d := range diags {
			logger.Printf("%s:%d:%d: %s: %s", file, d.Range.Start.Line+1, d.Range.Start.Character+1, d.Severity, d.Message)
			issues++
			if d.Severity == validator.SeverityError {
				errs++
			}
		}
	}

	if issues == 0 && errs == 0 {
		logger.Println("No issues found.")
		return nil
	}
	logger.Printf("\nFound %d issues.", issues)
	if errs > 0 {
		return errIssues
	}
	return nil
}

func runFmt(cmd *cobra.Command, args []string) error {
	failed := false
	for _, file := range args {
		content, err := os.ReadFile(file)
		if err != nil {
			logger.Printf("Error reading %s: %v", file, err)
			failed = true
			continue
		}
		out, changed, err := formatter.FormatText(string(content))
		if err != nil {
			logger.Printf("Error formatting %s: %v", file, err)
			failed = true
			continue
		}
		if !writeFormatted {
			if _, err := io.WriteString(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			continue
		}
		if !changed {
			continue
		}
		if err := os.WriteFile(file, []byte(out), 0o644); err != nil {
			logger.Printf("Error writing %s: %v", file, err)
			failed = true
			continue
		}
		logger.Printf("Formatted %s", file)
	}
	if failed {
		return errors.New("some files could not be formatted")
	}
	return nil
}

func runBundle(cmd *cobra.Command, args []string) error {
	output := cmd.OutOrStdout()
	if bundleOutput != "" {
		f, err := os.Create(bundleOutput)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", bundleOutput, err)
		}
		defer f.Close()
		output = f
	}
	if err := builder.NewBuilder(args, bundleSet).Build(output); err != nil {
		return fmt.Errorf("bundle failed: %w", err)
	}
	return nil
}

const taskTemplate = `apiVersion: tekton.dev/v1
kind: Task
metadata:
  name: %[1]s-build
spec:
  params:
    - name: revision
      type: string
      default: main
  workspaces:
    - name: source
  steps:
    - name: build
      image: alpine
      script: |
        echo "building $(params.revision)"
`

const pipelineTemplate = `apiVersion: tekton.dev/v1
kind: Pipeline
metadata:
  name: %[1]s
spec:
  params:
    - name: revision
      type: string
  workspaces:
    - name: shared
  tasks:
    - name: build
      taskRef:
        name: %[1]s-build
      params:
        - name: revision
          value: $(params.revision)
      workspaces:
        - name: source
          workspace: shared
`

func runInit(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := os.MkdirAll(filepath.Join(name, "tekton"), 0o755); err != nil {
		return fmt.Errorf("failed to create project directories: %w", err)
	}

	settings, err := config.Default().Marshal()
	if err != nil {
		return err
	}
	files := []struct {
		path    string
		content string
	}{
		{config.FileName, string(settings)},
		{filepath.Join("tekton", "task.yaml"), fmt.Sprintf(taskTemplate, name)},
		{filepath.Join("tekton", "pipeline.yaml"), fmt.Sprintf(pipelineTemplate, name)},
	}
	for _, f := range files {
		path := filepath.Join(name, f.path)
		if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		logger.Printf("Created %s", path)
	}
	logger.Printf("Project '%s' initialized successfully.", name)
	return nil
}
