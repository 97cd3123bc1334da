package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	bitwatch "github.com/mattkeenan/bitwatch/pkg"
)

// Output formats
const (
	formatHuman = "human"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validateFormat(format string) error {
	switch format {
	case formatHuman, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("invalid format '%s', must be 'human', 'json' or 'yaml'", format)
	}
}

// printer renders engine results. json writes one object per line, yaml one
// document per record.
type printer struct {
	w       io.Writer
	format  string
	verbose int
	quiet   bool
	yamlEnc *yaml.Encoder
}

func newPrinter(w io.Writer, format string, verbose int, quiet bool) *printer {
	p := &printer{w: w, format: format, verbose: verbose, quiet: quiet}
	if format == formatYAML {
		p.yamlEnc = yaml.NewEncoder(w)
		p.yamlEnc.SetIndent(2)
	}
	return p
}

// close flushes the yaml stream
func (p *printer) close() error {
	if p.yamlEnc != nil {
		return p.yamlEnc.Close()
	}
	return nil
}

// outcomeRecord is a NodeOutcome with its error flattened for encoding
type outcomeRecord struct {
	bitwatch.NodeOutcome `yaml:",inline"`
	Error                string `json:"error,omitempty" yaml:"error,omitempty"`
}

// summaryRecord wraps the final summary so streams can tell it apart
type summaryRecord struct {
	Summary bitwatch.RunSummary `json:"summary" yaml:"summary"`
	Error   string              `json:"error,omitempty" yaml:"error,omitempty"`
}

// encode writes one structured record
func (p *printer) encode(v any) error {
	switch p.format {
	case formatJSON:
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(p.w, "%s\n", data)
		return err
	case formatYAML:
		return p.yamlEnc.Encode(v)
	}
	return fmt.Errorf("format %s is not structured", p.format)
}

// event renders one run event
func (p *printer) event(event bitwatch.Event) error {
	if event.Summary != nil {
		return p.summary(*event.Summary, event.Err)
	}
	if event.Outcome == nil {
		return nil
	}
	outcome := *event.Outcome

	if p.format != formatHuman {
		record := outcomeRecord{NodeOutcome: outcome}
		if outcome.Err != nil {
			record.Error = outcome.Err.Error()
		}
		return p.encode(record)
	}

	if p.quiet && outcome.Status != bitwatch.OutcomeError {
		return nil
	}
	if outcome.Status == bitwatch.OutcomeUnchanged && p.verbose == 0 {
		return nil
	}
	if outcome.Status == bitwatch.OutcomeExcluded && p.verbose == 0 {
		return nil
	}

	line := fmt.Sprintf("%s %s", outcome.Status.Code(), outcome.AbsolutePath)
	if outcome.Kind == bitwatch.KindDirectory && !strings.HasSuffix(line, "/") {
		line += "/"
	}
	if outcome.Detail != "" {
		line += " (" + outcome.Detail + ")"
	}
	if p.verbose > 1 && outcome.Hash != "" {
		line += fmt.Sprintf(" %s:%s", outcome.Algorithm, outcome.Hash)
	}
	_, err := fmt.Fprintln(p.w, line)
	return err
}

// summary renders the end of a run
func (p *printer) summary(summary bitwatch.RunSummary, runErr error) error {
	if p.format != formatHuman {
		record := summaryRecord{Summary: summary}
		if runErr != nil {
			record.Error = runErr.Error()
		}
		return p.encode(record)
	}
	if p.quiet {
		return nil
	}

	_, err := fmt.Fprintf(p.w, "%d added, %d modified, %d deleted, %d errors, %d unchanged, %d excluded",
		summary.Added, summary.Modified, summary.Deleted, summary.Errors, summary.Unchanged, summary.Excluded)
	if err != nil {
		return err
	}
	if summary.RootsRetired > 0 {
		fmt.Fprintf(p.w, ", %d roots retired", summary.RootsRetired)
	}
	_, err = fmt.Fprintf(p.w, " in %s\n", summary.Duration().Round(1e6))
	return err
}

// structure renders one refresh entry
func (p *printer) structure(event bitwatch.StructureEvent, rootPath string) error {
	if event.Entry == nil {
		return nil
	}
	entry := *event.Entry

	if p.format != formatHuman {
		type structureRecord struct {
			bitwatch.StructureEntry `yaml:",inline"`
			Error                   string `json:"error,omitempty" yaml:"error,omitempty"`
		}
		record := structureRecord{StructureEntry: entry}
		if entry.Err != nil {
			record.Error = entry.Err.Error()
		}
		return p.encode(record)
	}

	if p.quiet && entry.Err == nil {
		return nil
	}

	code := " "
	switch {
	case entry.Err != nil:
		code = "E"
	case entry.Excluded:
		code = "X"
	case !entry.Known:
		code = "?"
	}
	line := fmt.Sprintf("%s %s", code, displayPath(rootPath, entry.RelativePath))
	if entry.Kind == bitwatch.KindDirectory {
		line += "/"
	}
	if entry.Err != nil {
		line += " (" + entry.Err.Error() + ")"
	}
	_, err := fmt.Fprintln(p.w, line)
	return err
}

// roots renders the registered roots
func (p *printer) roots(roots []bitwatch.Root) error {
	if p.format != formatHuman {
		if roots == nil {
			roots = []bitwatch.Root{}
		}
		return p.encode(roots)
	}
	for _, root := range roots {
		fmt.Fprintf(p.w, "%4d  %s  (added %s)\n", root.ID, root.Path, root.AddedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// exclusions renders exclusion rules with their root paths
func (p *printer) exclusions(root bitwatch.Root, rules []bitwatch.ExclusionRule) error {
	if p.format != formatHuman {
		if rules == nil {
			rules = []bitwatch.ExclusionRule{}
		}
		return p.encode(rules)
	}
	for _, rule := range rules {
		fmt.Fprintln(p.w, displayPath(root.Path, rule.RelativePath))
	}
	return nil
}

// duplicates renders duplicate groups, one blank line between groups
func (p *printer) duplicates(groups []bitwatch.DuplicateGroup, roots []bitwatch.Root) error {
	if p.format != formatHuman {
		if groups == nil {
			groups = []bitwatch.DuplicateGroup{}
		}
		return p.encode(groups)
	}

	paths := make(map[bitwatch.RootID]string, len(roots))
	for _, root := range roots {
		paths[root.ID] = root.Path
	}
	for i, group := range groups {
		if i > 0 {
			fmt.Fprintln(p.w)
		}
		fmt.Fprintf(p.w, "%s:%s (%d files)\n", group.Algorithm, group.Hash, group.Count)
		for _, file := range group.Files {
			fmt.Fprintf(p.w, "  %s\n", displayPath(paths[file.RootID], file.RelativePath))
		}
	}
	return nil
}

// settings renders resolved settings
func (p *printer) settings(settings bitwatch.Settings) error {
	if p.format != formatHuman {
		return p.encode(settings)
	}
	for _, key := range bitwatch.SettingKeys {
		value, err := settings.Value(key)
		if err != nil {
			return err
		}
		fmt.Fprintf(p.w, "%s = %s\n", key, value)
	}
	return nil
}

// message prints an informational line in human mode unless quiet
func (p *printer) message(format string, args ...any) {
	if p.format != formatHuman || p.quiet {
		return
	}
	fmt.Fprintf(p.w, format+"\n", args...)
}

// displayPath joins a root path and a relative path for display
func displayPath(rootPath, relPath string) string {
	if relPath == bitwatch.RootRelativePath {
		return rootPath
	}
	return strings.TrimSuffix(rootPath, "/") + "/" + relPath
}
