package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
)

// OptionType defines the type of value an option expects
type OptionType int

const (
	OptionTypeBool OptionType = iota
	OptionTypeString
	OptionTypeInt
	OptionTypeList // Repeatable string option, every value is kept
)

// OptionDef defines a command-line option
type OptionDef struct {
	Long        string     // Long option name (without --)
	Short       string     // Short option name (without -)
	Type        OptionType // Type of value expected
	Description string     // Help description
	Default     string     // Default value
}

// takesArgument reports whether the option needs a value of its own
func (d *OptionDef) takesArgument() bool {
	return d.Type == OptionTypeString || d.Type == OptionTypeList
}

// ParsedOptions holds the parsed command-line options. Options may appear
// anywhere on the command line, before or after the command.
type ParsedOptions struct {
	byLong  map[string]*OptionDef
	byShort map[rune]*OptionDef
	scalars map[string]string
	lists   map[string][]string
	given   map[string]bool // Options that appeared on the command line
	args    []string
}

// NewParsedOptions creates a new options parser
func NewParsedOptions() *ParsedOptions {
	return &ParsedOptions{
		byLong:  make(map[string]*OptionDef),
		byShort: make(map[rune]*OptionDef),
		scalars: make(map[string]string),
		lists:   make(map[string][]string),
		given:   make(map[string]bool),
		args:    []string{},
	}
}

// DefineOption defines a command-line option
func (p *ParsedOptions) DefineOption(long, short string, optType OptionType, defaultValue, description string) {
	def := &OptionDef{Long: long, Short: short, Type: optType, Description: description, Default: defaultValue}
	p.byLong[long] = def
	if short != "" {
		p.byShort[[]rune(short)[0]] = def
	}
	if defaultValue != "" && optType != OptionTypeList {
		p.scalars[long] = defaultValue
	}
}

// Parse parses command-line arguments. A bare "--" ends option parsing.
//
// Short options that take a value (-f, -o) are queued and filled, in order,
// by the next arguments that do not start with "-". Long options carry their
// value inline (--format=json).
func (p *ParsedOptions) Parse(args []string) error {
	var waiting []*OptionDef

	for i, arg := range args {
		switch {
		case arg == "--":
			if len(waiting) > 0 {
				return fmt.Errorf("option -%s requires a value", waiting[0].Short)
			}
			p.args = append(p.args, args[i+1:]...)
			return nil

		case strings.HasPrefix(arg, "--"):
			if err := p.parseLong(arg[2:]); err != nil {
				return err
			}

		case len(arg) > 1 && arg[0] == '-':
			queued, err := p.parseCluster(arg[1:])
			if err != nil {
				return err
			}
			waiting = append(waiting, queued...)

		case len(waiting) > 0:
			p.record(waiting[0], arg)
			waiting = waiting[1:]

		default:
			p.args = append(p.args, arg)
		}
	}

	if len(waiting) > 0 {
		return fmt.Errorf("option -%s requires a value", waiting[0].Short)
	}
	return nil
}

// parseLong handles "name" or "name=value" from a --name[=value] argument
func (p *ParsedOptions) parseLong(body string) error {
	name, value, inline := strings.Cut(body, "=")
	def, ok := p.byLong[name]
	if !ok {
		return fmt.Errorf("unknown option: --%s", name)
	}

	if def.Type == OptionTypeBool {
		if !inline {
			value = "true"
		}
		parsed, err := parseFlagValue(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for --%s: %s", name, value)
		}
		p.record(def, strconv.FormatBool(parsed))
		return nil
	}

	if value == "" {
		return fmt.Errorf("option --%s requires a value (use --%s=value)", name, name)
	}
	if def.Type == OptionTypeInt {
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("invalid integer value for --%s: %s", name, value)
		}
	}
	p.record(def, value)
	return nil
}

// parseFlagValue accepts the boolean spellings allowed after --flag=
func parseFlagValue(value string) (bool, error) {
	switch value {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %s", value)
}

// parseCluster handles the letters of a short option group such as -vvq.
// Flags are set at once and a repeated int option counts its repetitions
// (-vvv is 3); a following number is never taken as its value, so root ids
// stay positional. Value-taking options are returned, one entry per
// occurrence, to be filled from later arguments.
func (p *ParsedOptions) parseCluster(letters string) ([]*OptionDef, error) {
	counts := make(map[*OptionDef]int)
	var queued []*OptionDef

	for _, letter := range letters {
		def, ok := p.byShort[letter]
		if !ok {
			return nil, fmt.Errorf("unknown option: -%c", letter)
		}
		counts[def]++

		switch {
		case def.takesArgument():
			queued = append(queued, def)
		case def.Type == OptionTypeInt:
			p.record(def, strconv.Itoa(counts[def]))
		default:
			p.record(def, "true")
		}
	}
	return queued, nil
}

// record stores a value, appending for list options
func (p *ParsedOptions) record(def *OptionDef, value string) {
	if def.Type == OptionTypeList {
		p.lists[def.Long] = append(p.lists[def.Long], value)
	} else {
		p.scalars[def.Long] = value
	}
	p.given[def.Long] = true
}

// GetString returns a string option value
func (p *ParsedOptions) GetString(option string) string {
	return p.scalars[option]
}

// GetInt returns an integer option value, or 0 when unset
func (p *ParsedOptions) GetInt(option string) int {
	n, _ := strconv.Atoi(p.scalars[option])
	return n
}

// GetBool returns a boolean option value
func (p *ParsedOptions) GetBool(option string) bool {
	return p.scalars[option] == "true"
}

// GetList returns every value given for a list option, in order
func (p *ParsedOptions) GetList(option string) []string {
	return p.lists[option]
}

// IsSet returns true if an option was explicitly set
func (p *ParsedOptions) IsSet(option string) bool {
	return p.given[option]
}

// GetArgs returns non-option arguments
func (p *ParsedOptions) GetArgs() []string {
	return p.args
}

// WriteUsage lists the defined options in name order
func (p *ParsedOptions) WriteUsage(w io.Writer) {
	names := make([]string, 0, len(p.byLong))
	for name := range p.byLong {
		names = append(names, name)
	}
	slices.Sort(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range names {
		def := p.byLong[name]

		prefix := "    "
		if def.Short != "" {
			prefix = "-" + def.Short + ", "
		}
		flag := "--" + def.Long
		switch {
		case def.takesArgument():
			flag += "=VALUE"
		case def.Type == OptionTypeInt:
			flag += "=N"
		}

		help := def.Description
		if def.Default != "" && def.Type != OptionTypeBool {
			help += " (default: " + def.Default + ")"
		}
		fmt.Fprintf(tw, "  %s%s\t%s\n", prefix, flag, help)
	}
	tw.Flush()
}
