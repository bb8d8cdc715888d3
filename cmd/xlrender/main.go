// Command xlrender is the command-line embedder for the template renderer:
// it wires xl/render.Render to file I/O and a small, stable exit-code
// contract.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/adnsv/go-xltmpl/xl"
	"github.com/adnsv/go-xltmpl/xl/render"
	"github.com/urfave/cli/v2"
)

// Exit codes are part of the CLI contract.
const (
	exitOK                 = 0
	exitTemplateValidation = 1
	exitRenderFailure      = 2
)

func main() {
	app := &cli.App{
		Name:      "xlrender",
		Usage:     "render a Handlebars-templated XLSX workbook against a JSON data context",
		ArgsUsage: "<template.xlsx> <data.json>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "optional YAML config file"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output .xlsx path (default: stdout)"},
			&cli.BoolFlag{Name: "deterministic", Usage: "use reproducible ids instead of random UUIDs"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "xlrender:", err)
		if coder, ok := err.(cli.ExitCoder); ok {
			os.Exit(coder.ExitCode())
		}
		os.Exit(exitRenderFailure)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("expected <template.xlsx> <data.json>", exitTemplateValidation)
	}

	opts := render.Options{}
	outputPath := c.String("output")

	if cfgPath := c.String("config"); cfgPath != "" {
		cfg, err := loadConfig(cfgPath)
		if err != nil {
			return cli.Exit(fmt.Sprintf("reading config: %v", err), exitTemplateValidation)
		}
		opts.Deterministic = cfg.Deterministic
		if outputPath == "" {
			outputPath = cfg.Output
		}
	}
	if c.IsSet("deterministic") {
		opts.Deterministic = c.Bool("deterministic")
	}

	templateBytes, err := os.ReadFile(c.Args().Get(0))
	if err != nil {
		return cli.Exit(fmt.Sprintf("reading template: %v", err), exitTemplateValidation)
	}
	dataBytes, err := os.ReadFile(c.Args().Get(1))
	if err != nil {
		return cli.Exit(fmt.Sprintf("reading data: %v", err), exitTemplateValidation)
	}

	result, err := render.Render(templateBytes, dataBytes, opts)
	if err != nil {
		return cli.Exit(err.Error(), exitCodeFor(err))
	}

	for _, w := range result.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}

	if outputPath == "" || outputPath == "-" {
		_, err = os.Stdout.Write(result.Bytes)
		return err
	}
	return os.WriteFile(outputPath, result.Bytes, 0o644)
}

// exitCodeFor maps a RenderError's Kind to the two-tier failure contract:
// malformed template/data input (the caller's mistake, caught before or
// during parsing) is a validation failure; everything else
// — a structurally invalid package, an internal invariant break — is a
// render failure.
func exitCodeFor(err error) int {
	var rerr *xl.RenderError
	if errors.As(err, &rerr) {
		switch rerr.Kind {
		case xl.KindTemplateParse, xl.KindDataParse:
			return exitTemplateValidation
		default:
			return exitRenderFailure
		}
	}
	return exitRenderFailure
}
