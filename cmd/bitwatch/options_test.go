package main

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

// Test basic option definition and parsing
func TestOptionDefinition(t *testing.T) {
	options := NewParsedOptions()

	options.DefineOption("test-string", "s", OptionTypeString, "default", "Test string option")
	options.DefineOption("test-bool", "b", OptionTypeBool, "false", "Test bool option")
	options.DefineOption("test-int", "i", OptionTypeInt, "0", "Test int option")

	args := []string{"--test-string=value", "--test-bool", "--test-int=42"}
	if err := options.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if options.GetString("test-string") != "value" {
		t.Errorf("Expected string 'value', got %s", options.GetString("test-string"))
	}
	if !options.GetBool("test-bool") {
		t.Errorf("Expected bool true, got %v", options.GetBool("test-bool"))
	}
	if options.GetInt("test-int") != 42 {
		t.Errorf("Expected int 42, got %d", options.GetInt("test-int"))
	}
}

// Test short option parsing
func TestShortOptions(t *testing.T) {
	options := NewParsedOptions()

	options.DefineOption("verbose", "v", OptionTypeInt, "0", "Verbose level")
	options.DefineOption("help", "h", OptionTypeBool, "false", "Show help")
	options.DefineOption("quiet", "q", OptionTypeBool, "false", "Quiet mode")

	if err := options.Parse([]string{"-vvv", "-hq"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if options.GetInt("verbose") != 3 {
		t.Errorf("Expected verbose level 3, got %d", options.GetInt("verbose"))
	}
	if !options.GetBool("help") {
		t.Errorf("Expected help true, got %v", options.GetBool("help"))
	}
	if !options.GetBool("quiet") {
		t.Errorf("Expected quiet true, got %v", options.GetBool("quiet"))
	}
}

// A single -v must not swallow a numeric root id
func TestShortIntLeavesNumbersPositional(t *testing.T) {
	options := NewParsedOptions()
	options.DefineOption("verbose", "v", OptionTypeInt, "0", "Verbose level")

	if err := options.Parse([]string{"-v", "remove", "3"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if options.GetInt("verbose") != 1 {
		t.Errorf("Expected verbose level 1, got %d", options.GetInt("verbose"))
	}
	if want := []string{"remove", "3"}; !reflect.DeepEqual(options.GetArgs(), want) {
		t.Errorf("Expected args %v, got %v", want, options.GetArgs())
	}
}

// Test argument collection
func TestArgumentCollection(t *testing.T) {
	options := NewParsedOptions()

	options.DefineOption("format", "f", OptionTypeString, "human", "Format option")
	options.DefineOption("prune", "p", OptionTypeBool, "false", "Prune")

	args := []string{"--format=json", "verify", "/data/a", "--prune", "/data/b"}
	if err := options.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if options.GetString("format") != "json" {
		t.Errorf("Expected format 'json', got %s", options.GetString("format"))
	}
	if !options.GetBool("prune") {
		t.Errorf("Expected prune true, got %v", options.GetBool("prune"))
	}

	expectedArgs := []string{"verify", "/data/a", "/data/b"}
	if !reflect.DeepEqual(options.GetArgs(), expectedArgs) {
		t.Errorf("Expected args %v, got %v", expectedArgs, options.GetArgs())
	}
}

func TestShortStringConsumesValue(t *testing.T) {
	options := NewParsedOptions()
	options.DefineOption("format", "f", OptionTypeString, "human", "Format option")

	if err := options.Parse([]string{"-f", "yaml", "roots"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if options.GetString("format") != "yaml" {
		t.Errorf("Expected format 'yaml', got %s", options.GetString("format"))
	}
	if want := []string{"roots"}; !reflect.DeepEqual(options.GetArgs(), want) {
		t.Errorf("Expected args %v, got %v", want, options.GetArgs())
	}
}

func TestListOption(t *testing.T) {
	options := NewParsedOptions()
	options.DefineOption("override", "o", OptionTypeList, "", "Override")

	args := []string{"-o", "default:md5", "hash", "--override=dsn:/tmp/x.db", "-oo", "level:debug", "mode:all"}
	if err := options.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := []string{"default:md5", "dsn:/tmp/x.db", "level:debug", "mode:all"}
	if got := options.GetList("override"); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected overrides %v, got %v", want, got)
	}
	if !options.IsSet("override") {
		t.Error("Expected override to be set")
	}
	if want := []string{"hash"}; !reflect.DeepEqual(options.GetArgs(), want) {
		t.Errorf("Expected args %v, got %v", want, options.GetArgs())
	}
}

func TestShortValuesFillInOrder(t *testing.T) {
	options := NewParsedOptions()
	options.DefineOption("format", "f", OptionTypeString, "human", "Format option")
	options.DefineOption("override", "o", OptionTypeList, "", "Override")
	options.DefineOption("prune", "p", OptionTypeBool, "false", "Prune")

	args := []string{"-fo", "--prune", "json", "level:debug", "verify", "/data"}
	if err := options.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if options.GetString("format") != "json" {
		t.Errorf("Expected format 'json', got %s", options.GetString("format"))
	}
	if want := []string{"level:debug"}; !reflect.DeepEqual(options.GetList("override"), want) {
		t.Errorf("Expected overrides %v, got %v", want, options.GetList("override"))
	}
	if !options.GetBool("prune") {
		t.Error("Expected prune between a short option and its value to be parsed")
	}
	if want := []string{"verify", "/data"}; !reflect.DeepEqual(options.GetArgs(), want) {
		t.Errorf("Expected args %v, got %v", want, options.GetArgs())
	}
}

func TestDoubleDashEndsOptions(t *testing.T) {
	options := NewParsedOptions()
	options.DefineOption("quiet", "q", OptionTypeBool, "false", "Quiet")

	if err := options.Parse([]string{"exclude", "-q", "--", "-odd-name", "--also"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !options.GetBool("quiet") {
		t.Error("Expected quiet before -- to be parsed")
	}
	if want := []string{"exclude", "-odd-name", "--also"}; !reflect.DeepEqual(options.GetArgs(), want) {
		t.Errorf("Expected args %v, got %v", want, options.GetArgs())
	}
}

// Test boolean option variations
func TestBooleanOptions(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{"Boolean flag present", []string{"--test-bool"}, true},
		{"Boolean flag absent", []string{}, false},
		{"Boolean with explicit true", []string{"--test-bool=true"}, true},
		{"Boolean with explicit false", []string{"--test-bool=false"}, false},
		{"Boolean with 1", []string{"--test-bool=1"}, true},
		{"Boolean with 0", []string{"--test-bool=0"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			options := NewParsedOptions()
			options.DefineOption("test-bool", "t", OptionTypeBool, "false", "Test boolean")

			if err := options.Parse(tt.args); err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if options.GetBool("test-bool") != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, options.GetBool("test-bool"))
			}
		})
	}
}

// Test error conditions
func TestOptionErrors(t *testing.T) {
	tests := []struct {
		name    string
		optType OptionType
		args    []string
	}{
		{"Unknown long option", OptionTypeBool, []string{"--unknown"}},
		{"Unknown short option", OptionTypeBool, []string{"-u"}},
		{"Invalid boolean value", OptionTypeBool, []string{"--test=invalid"}},
		{"Invalid integer value", OptionTypeInt, []string{"--test=notanumber"}},
		{"String option requires value", OptionTypeString, []string{"--test"}},
		{"Integer option requires value", OptionTypeInt, []string{"--test"}},
		{"List option requires value", OptionTypeList, []string{"-t"}},
		{"Short value stops at --", OptionTypeString, []string{"-t", "--", "value"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			options := NewParsedOptions()
			options.DefineOption("test", "t", tt.optType, "", "Test option")

			if err := options.Parse(tt.args); err == nil {
				t.Errorf("Expected error but got none")
			}
		})
	}
}

// Test default values
func TestDefaultValues(t *testing.T) {
	options := NewParsedOptions()

	options.DefineOption("string-opt", "s", OptionTypeString, "default-string", "String option")
	options.DefineOption("bool-opt", "b", OptionTypeBool, "true", "Bool option")
	options.DefineOption("int-opt", "i", OptionTypeInt, "42", "Int option")

	if err := options.Parse([]string{}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if options.GetString("string-opt") != "default-string" {
		t.Errorf("Expected default string 'default-string', got %s", options.GetString("string-opt"))
	}
	if !options.GetBool("bool-opt") {
		t.Errorf("Expected default bool true, got %v", options.GetBool("bool-opt"))
	}
	if options.GetInt("int-opt") != 42 {
		t.Errorf("Expected default int 42, got %d", options.GetInt("int-opt"))
	}
	if options.IsSet("string-opt") {
		t.Error("Expected defaults not to count as set")
	}
}

func TestWriteUsage(t *testing.T) {
	var buf bytes.Buffer
	defineOptions().WriteUsage(&buf)
	usage := buf.String()

	for _, want := range []string{"-h, --help", "--format=VALUE", "(default: human)", "-o, --override=VALUE", "--interval=N"} {
		if !strings.Contains(usage, want) {
			t.Errorf("Expected usage to contain %q, got:\n%s", want, usage)
		}
	}
	if strings.Index(usage, "--config") > strings.Index(usage, "--version") {
		t.Error("Expected options sorted by name")
	}
}
