package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hesusruiz/adoc/adoc"
	"github.com/hesusruiz/adoc/diagram"
	"github.com/hesusruiz/adoc/highlight"
	"github.com/hesusruiz/adoc/safe"
)

var debug bool

// buildOptions assembles the parsing options from the configuration file
// and the command line, which wins.
func buildOptions(c *cli.Context, sugar *zap.SugaredLogger) (adoc.Options, error) {

	opts := adoc.DefaultOptions()
	if cfg := c.String("config"); len(cfg) > 0 {
		var err error
		if opts, err = adoc.LoadOptions(cfg); err != nil {
			return opts, err
		}
	}

	if s := c.String("safe"); len(s) > 0 {
		mode, err := safe.ParseMode(s)
		if err != nil {
			return opts, err
		}
		opts.SafeMode = mode
	}
	if s := c.String("attribute-missing"); len(s) > 0 {
		if !adoc.ValidMissingPolicy(s) {
			return opts, fmt.Errorf("invalid attribute-missing policy %q", s)
		}
		opts.AttributeMissing = s
	}
	if s := c.String("doctype"); len(s) > 0 {
		opts.Doctype = s
	}
	if c.IsSet("base-dir") {
		opts.BaseDir = c.String("base-dir")
	}
	opts.ParseHeaderOnly = c.Bool("header-only")

	attrs := map[string]string{}
	for k, v := range opts.Attributes {
		attrs[k] = v
	}
	for _, a := range c.StringSlice("attribute") {
		name, value, _ := strings.Cut(a, "=")
		attrs[name] = value
	}
	opts.Attributes = attrs

	opts.Logger = sugar

	if !c.Bool("no-highlight") {
		opts.Highlighter = highlight.New()
	}

	reg := adoc.NewRegistry()
	d2 := &diagram.D2{OutDir: c.String("diagrams"), Log: sugar}
	if err := d2.Register(reg); err != nil {
		return opts, err
	}
	opts.Extensions = reg

	return opts, nil
}

// render parses the input and produces the requested output.
func render(c *cli.Context, inputFileName string, sugar *zap.SugaredLogger) ([]byte, error) {

	opts, err := buildOptions(c, sugar)
	if err != nil {
		return nil, err
	}

	doc, err := adoc.ParseFromFile(inputFileName, opts)
	if err != nil {
		return nil, err
	}

	if debug {
		for _, d := range doc.Diagnostics() {
			fmt.Fprintln(os.Stderr, d.SyntaxError())
		}
	}

	var out bytes.Buffer
	if c.Bool("outline") {
		writeOutline(&out, doc)
		return out.Bytes(), nil
	}
	if err := dumpTree(&out, doc); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// processWatch checks periodically if the input file has been modified,
// and if so processes it again.
func processWatch(c *cli.Context, inputFileName, outputFileName string, sugar *zap.SugaredLogger) error {

	var oldTimestamp time.Time

	for {
		info, err := os.Stat(inputFileName)
		if err != nil {
			return err
		}

		if current := info.ModTime(); oldTimestamp.Before(current) {
			oldTimestamp = current
			sugar.Infow("processing", "file", inputFileName)
			out, err := render(c, inputFileName, sugar)
			if err != nil {
				// Keep watching, the next save may fix it
				sugar.Errorw("processing failed", "error", err)
			} else if err := os.WriteFile(outputFileName, out, 0664); err != nil {
				return err
			}
		}

		time.Sleep(1 * time.Second)
	}
}

// process is the main entry point of the program
func process(c *cli.Context) error {

	inputFileName := "index.adoc"
	outputFileName := c.String("output")
	dryrun := c.Bool("dryrun")
	debug = c.Bool("debug")

	var z *zap.Logger
	var err error

	if debug {
		z, err = zap.NewDevelopment()
	} else {
		z, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}

	sugar := z.Sugar()
	defer sugar.Sync()

	if c.Args().Present() {
		inputFileName = c.Args().First()
	} else {
		fmt.Printf("no input file provided, using %q\n", inputFileName)
	}

	if len(outputFileName) == 0 {
		ext := filepath.Ext(inputFileName)
		suffix := ".yaml"
		if c.Bool("outline") {
			suffix = ".txt"
		}
		outputFileName = strings.TrimSuffix(inputFileName, ext) + suffix
	}

	if c.Bool("watch") {
		return processWatch(c, inputFileName, outputFileName, sugar)
	}

	out, err := render(c, inputFileName, sugar)
	if err != nil {
		return err
	}

	if dryrun {
		return nil
	}
	if outputFileName == "-" {
		_, err = os.Stdout.Write(out)
		return err
	}
	return os.WriteFile(outputFileName, out, 0664)
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "adoc",
		Version:   "v0.1.0",
		Usage:     "parse an AsciiDoc document and dump its block tree",
		UsageText: "adoc [options] [INPUT_FILE] (default input file is index.adoc)",
		Action:    process,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "write the tree to `FILE`, - for stdout (default is input file name with extension .yaml)",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "read options from the YAML `FILE`",
			},
			&cli.StringFlag{
				Name:    "safe",
				Aliases: []string{"S"},
				Usage:   "safe mode: unsafe, safe, server or secure",
			},
			&cli.StringSliceFlag{
				Name:    "attribute",
				Aliases: []string{"a"},
				Usage:   "set a document attribute, `NAME=VALUE`",
			},
			&cli.StringFlag{
				Name:  "attribute-missing",
				Usage: "policy for undefined attributes: skip, drop, drop-line or warn",
			},
			&cli.StringFlag{
				Name:    "doctype",
				Aliases: []string{"t"},
				Usage:   "article, book, manpage or inline",
			},
			&cli.StringFlag{
				Name:    "base-dir",
				Aliases: []string{"B"},
				Usage:   "directory includes are resolved and jailed to",
			},
			&cli.StringFlag{
				Name:  "diagrams",
				Usage: "write rendered diagrams under `DIR` instead of inlining them",
			},
			&cli.BoolFlag{
				Name:  "outline",
				Usage: "print the section outline instead of the tree",
			},
			&cli.BoolFlag{
				Name:  "header-only",
				Usage: "stop after the document header",
			},
			&cli.BoolFlag{
				Name:  "no-highlight",
				Usage: "do not highlight source blocks",
			},
			&cli.BoolFlag{
				Name:    "dryrun",
				Aliases: []string{"n"},
				Usage:   "do not generate output file, just process input file",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "run in debug mode",
			},
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "watch the file for changes",
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
