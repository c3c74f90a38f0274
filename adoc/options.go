package adoc

import (
	"fmt"
	"strconv"

	"github.com/hesusruiz/vcutils/yaml"
	"go.uber.org/zap"

	"github.com/hesusruiz/adoc/reader"
	"github.com/hesusruiz/adoc/safe"
)

// Policies for references to attributes that are not defined.
const (
	// MissingSkip leaves the reference as written.
	MissingSkip = "skip"
	// MissingDrop removes the reference.
	MissingDrop = "drop"
	// MissingDropLine removes the whole line that holds the reference.
	MissingDropLine = "drop-line"
	// MissingWarn leaves the reference as written and logs a warning.
	MissingWarn = "warn"
)

// ValidMissingPolicy reports whether name is one of the attribute-missing policies.
func ValidMissingPolicy(name string) bool {
	switch name {
	case MissingSkip, MissingDrop, MissingDropLine, MissingWarn:
		return true
	}
	return false
}

// DefaultMaxNesting bounds how deep delimited blocks and lists may nest.
const DefaultMaxNesting = 64

// Options configure a conversion.
type Options struct {
	// SafeMode gates includes and attribute overrides. The default is safe.Secure.
	SafeMode safe.Mode

	// AttributeMissing is the policy for references to undefined attributes.
	AttributeMissing string

	// AttributeUndefined is the policy for {set:name!} and similar unsets.
	AttributeUndefined string

	// MaxIncludeDepth bounds nested includes, default 64.
	MaxIncludeDepth int

	// MaxNesting bounds nested blocks, default 64.
	MaxNesting int

	// BaseDir is where relative paths start and the jail for includes.
	BaseDir string

	// Doctype is article, book, manpage or inline.
	Doctype string

	// Attributes are set before parsing. They cannot be changed by the
	// document unless the name or the value ends with '@'.
	Attributes map[string]string

	// ParseHeaderOnly stops after the document header.
	ParseHeaderOnly bool

	// CodeStyle is passed to the highlighter.
	CodeStyle string

	Logger      *zap.SugaredLogger
	Extensions  *Registry
	Highlighter Highlighter

	// Config is the configuration file the options came from, if any.
	Config *yaml.YAML
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	config, _ := yaml.ParseYaml("")
	return Options{
		SafeMode:           safe.Secure,
		AttributeMissing:   MissingSkip,
		AttributeUndefined: MissingDropLine,
		MaxIncludeDepth:    reader.DefaultMaxIncludeDepth,
		MaxNesting:         DefaultMaxNesting,
		BaseDir:            ".",
		Doctype:            "article",
		Attributes:         map[string]string{},
		CodeStyle:          "github",
		Config:             config,
	}
}

// LoadOptions reads a YAML configuration file. Keys live under "adoc":
//
//	adoc:
//	  safe: server
//	  attributeMissing: warn
//	  maxIncludeDepth: 8
func LoadOptions(fileName string) (Options, error) {

	opts := DefaultOptions()

	config, err := yaml.ParseYamlFile(fileName)
	if err != nil {
		return opts, fmt.Errorf("reading configuration %s: %w", fileName, err)
	}

	return optionsFromConfig(opts, config)
}

// OptionsFromYAML is like LoadOptions but parses the configuration from a string.
func OptionsFromYAML(src string) (Options, error) {
	config, err := yaml.ParseYaml(src)
	if err != nil {
		return DefaultOptions(), fmt.Errorf("parsing configuration: %w", err)
	}
	return optionsFromConfig(DefaultOptions(), config)
}

func optionsFromConfig(opts Options, config *yaml.YAML) (Options, error) {

	opts.Config = config

	if s := config.String("adoc.safe", ""); len(s) > 0 {
		mode, err := safe.ParseMode(s)
		if err != nil {
			return opts, err
		}
		opts.SafeMode = mode
	}

	if s := config.String("adoc.attributeMissing", ""); len(s) > 0 {
		if !ValidMissingPolicy(s) {
			return opts, fmt.Errorf("invalid attributeMissing policy %q", s)
		}
		opts.AttributeMissing = s
	}

	if s := config.String("adoc.attributeUndefined", ""); len(s) > 0 {
		opts.AttributeUndefined = s
	}

	for key, target := range map[string]*int{
		"adoc.maxIncludeDepth": &opts.MaxIncludeDepth,
		"adoc.maxNesting":      &opts.MaxNesting,
	} {
		if s := config.String(key, ""); len(s) > 0 {
			n, err := strconv.Atoi(s)
			if err != nil {
				return opts, fmt.Errorf("%s must be a number: %w", key, err)
			}
			*target = n
		}
	}

	opts.BaseDir = config.String("adoc.baseDir", opts.BaseDir)
	opts.Doctype = config.String("adoc.doctype", opts.Doctype)
	opts.CodeStyle = config.String("adoc.codeStyle", opts.CodeStyle)
	opts.ParseHeaderOnly = config.Bool("adoc.parseHeaderOnly")

	return opts, nil
}
