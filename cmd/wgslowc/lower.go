package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gogpu/wgsl-ir/config"
	"github.com/gogpu/wgsl-ir/ir"
	"github.com/gogpu/wgsl-ir/lower"
	"github.com/gogpu/wgsl-ir/wgsl"
)

// runLower reads, parses, resolves, and lowers the shader named by
// args[0], validates the result, writes a dump of the module when
// --dump is given, and prints a one-line summary.
func runLower(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	configPath, _ := cmd.Flags().GetString("config")
	dumpPath, _ := cmd.Flags().GetString("dump")

	if verbose {
		log.SetLevel(logrus.TraceLevel)
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	inputPath := args[0]
	source, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", inputPath, err)
	}

	module, err := parseWGSL(string(source), inputPath)
	if err != nil {
		return err
	}

	irModule, err := lower.LowerWithLog(module, cfg, log.WithField("file", inputPath))
	if err != nil {
		return fmt.Errorf("lowering %s: %w", inputPath, err)
	}

	if errs, err := ir.Validate(irModule); err != nil {
		return fmt.Errorf("validating %s: %w", inputPath, err)
	} else if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "wgslowc: validation: %s\n", e)
		}
		return fmt.Errorf("%s failed validation with %d error(s)", inputPath, len(errs))
	}

	if dumpPath != "" {
		if err := os.WriteFile(dumpPath, []byte(dumpModule(irModule)), 0o644); err != nil {
			return fmt.Errorf("writing dump: %w", err)
		}
	}

	fmt.Println(summarizeModule(inputPath, irModule))
	return nil
}

// parseWGSL lexes and parses source into a wgsl.Module, wrapping a
// lexing or parsing error (the parser's wraps a wgsl.ParseError value)
// with the input path so the CLI's error output names the offending file.
func parseWGSL(source, path string) (*wgsl.Module, error) {
	lexer := wgsl.NewLexer(source)
	tokens, err := lexer.Tokenize()
	if err != nil {
		return nil, fmt.Errorf("lexing %s: %w", path, err)
	}
	parser := wgsl.NewParser(tokens)
	module, err := parser.Parse()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return module, nil
}

func summarizeModule(path string, m *ir.Module) string {
	return fmt.Sprintf(
		"%s: %d type(s), %d function(s), %d entry point(s), %d global var(s), %d constant(s)",
		path, len(m.Types), len(m.Functions), len(m.EntryPoints), len(m.GlobalVariables), len(m.Constants),
	)
}

func dumpModule(m *ir.Module) string {
	var b []byte
	b = append(b, []byte(fmt.Sprintf("types: %d\n", len(m.Types)))...)
	for i, t := range m.Types {
		name := t.Name
		if name == "" {
			name = "<anonymous>"
		}
		b = append(b, []byte(fmt.Sprintf("  [%d] %s: %T\n", i, name, t.Inner))...)
	}
	b = append(b, []byte(fmt.Sprintf("functions: %d\n", len(m.Functions)))...)
	for i, f := range m.Functions {
		b = append(b, []byte(fmt.Sprintf("  [%d] %s(%d args) -> %d statements\n", i, f.Name, len(f.Arguments), len(f.Body)))...)
	}
	b = append(b, []byte(fmt.Sprintf("entry points: %d\n", len(m.EntryPoints)))...)
	for _, ep := range m.EntryPoints {
		b = append(b, []byte(fmt.Sprintf("  %s (%s)\n", ep.Name, stageName(ep.Stage)))...)
	}
	return string(b)
}

func stageName(s ir.ShaderStage) string {
	switch s {
	case ir.StageVertex:
		return "vertex"
	case ir.StageFragment:
		return "fragment"
	case ir.StageCompute:
		return "compute"
	default:
		return "unknown"
	}
}
