package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/rupor-github/gencfg"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfiguration_NoFile(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() with empty path error = %v", err)
	}

	if cfg.Version != 1 {
		t.Errorf("Default config version = %d, want 1", cfg.Version)
	}
	tr := cfg.Transform
	if tr.RootValue != 75 {
		t.Errorf("RootValue = %v, want 75", tr.RootValue)
	}
	if !slices.Equal(tr.PropList, []string{"*"}) {
		t.Errorf("PropList = %v, want [*]", tr.PropList)
	}
	if tr.UnitPrecision != 5 || !tr.Replace || tr.MediaQuery || tr.MinPixelValue != 0 {
		t.Errorf("unexpected transform defaults: %+v", tr)
	}
	if !slices.Equal(cfg.Processing.Extensions, []string{".css", ".wxss"}) {
		t.Errorf("Extensions = %v", cfg.Processing.Extensions)
	}
	if cfg.Processing.Workers != 0 {
		t.Errorf("Workers = %d, want 0", cfg.Processing.Workers)
	}
	if cfg.Logging.ConsoleLogger.Level != "normal" || cfg.Logging.FileLogger.Level != "none" {
		t.Errorf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadConfiguration_WithFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeConfig(t, `version: 1
transform:
  root_value: 16
  unit_precision: 3
  prop_list: ["font*", "!font-weight", "*margin*"]
  min_pixel_value: 2
  selector_black_list: [".ignore", "/^body$/"]
  replace: false
  media_query: true
  exclude: ["node_modules"]
  root_value_rules:
    - match: "vant/"
      root_value: 37.5
processing:
  extensions: [".css"]
  workers: 4
logging:
  console:
    level: debug
  file:
    level: debug
    destination: `+filepath.Join(tmpDir, "logs", "test.log")+`
    mode: append
reporting:
  destination: `+filepath.Join(tmpDir, "report.zip")+`
  max_units: 5
`)

	cfg, err := LoadConfiguration(path)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}

	tr := cfg.Transform
	if tr.RootValue != 16 || tr.UnitPrecision != 3 || tr.MinPixelValue != 2 {
		t.Errorf("unexpected numbers: %+v", tr)
	}
	if tr.Replace || !tr.MediaQuery {
		t.Errorf("unexpected flags: replace=%v media_query=%v", tr.Replace, tr.MediaQuery)
	}
	if len(tr.PropList) != 3 || len(tr.SelectorBlackList) != 2 || len(tr.Exclude) != 1 {
		t.Errorf("unexpected lists: %+v", tr)
	}
	if len(tr.RootValueRules) != 1 || tr.RootValueRules[0].RootValue != 37.5 {
		t.Errorf("RootValueRules = %+v", tr.RootValueRules)
	}
	if cfg.Processing.Workers != 4 || !slices.Equal(cfg.Processing.Extensions, []string{".css"}) {
		t.Errorf("Processing = %+v", cfg.Processing)
	}
	if cfg.Reporting.MaxUnits != 5 {
		t.Errorf("MaxUnits = %d, want 5", cfg.Reporting.MaxUnits)
	}
	// sanitizer makes sure log directory exists
	if _, err := os.Stat(filepath.Join(tmpDir, "logs")); err != nil {
		t.Errorf("log directory was not created: %v", err)
	}
}

func TestLoadConfiguration_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `version: 1
transform:
  root_value: 37.5
`)
	cfg, err := LoadConfiguration(path)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	if cfg.Transform.RootValue != 37.5 {
		t.Errorf("RootValue = %v, want 37.5", cfg.Transform.RootValue)
	}
	if cfg.Transform.UnitPrecision != 5 || !cfg.Transform.Replace {
		t.Errorf("defaults lost: %+v", cfg.Transform)
	}
	if len(cfg.Processing.Extensions) != 2 {
		t.Errorf("Extensions = %v", cfg.Processing.Extensions)
	}
}

func TestLoadConfiguration_NonExistentFile(t *testing.T) {
	if _, err := LoadConfiguration("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for nonexistent file")
	}
}

func TestLoadConfiguration_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"invalid yaml", "version: 1\ntransform:\n  root_value: 16\n  invalid indent\n", "decode"},
		{"unknown field", "version: 1\nunknown_field: value\n", "unknown_field"},
		{"unknown transform field", "version: 1\ntransform:\n  rem_unit: 16\n", "rem_unit"},
		{"bad version", "version: 2\n", "Version"},
		{"zero root value", "version: 1\ntransform:\n  root_value: 0\n", "RootValue"},
		{"large precision", "version: 1\ntransform:\n  unit_precision: 16\n", "UnitPrecision"},
		{"negative minimum", "version: 1\ntransform:\n  min_pixel_value: -1\n", "MinPixelValue"},
		{"empty prop pattern", "version: 1\ntransform:\n  prop_list: [\"\"]\n", "PropList"},
		{"unsupported prop pattern", "version: 1\ntransform:\n  prop_list: [\"a*b\"]\n", "unsupported property pattern"},
		{"bad exclude", "version: 1\ntransform:\n  exclude: [\"(\"]\n", "exclude pattern"},
		{"bad selector", "version: 1\ntransform:\n  selector_black_list: [\"/[/\"]\n", "selector black list"},
		{"bad rule", "version: 1\ntransform:\n  root_value_rules:\n    - match: a\n      root_value: 0\n", "RootValue"},
		{"bad extension", "version: 1\nprocessing:\n  extensions: [\"css\"]\n", "Extensions"},
		{"no extensions", "version: 1\nprocessing:\n  extensions: []\n", "Extensions"},
		{"negative workers", "version: 1\nprocessing:\n  workers: -1\n", "Workers"},
		{"bad log level", "version: 1\nlogging:\n  console:\n    level: loud\n", "Level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfiguration(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfiguration_WithOptions(t *testing.T) {
	option := func(opts *gencfg.ProcessingOptions) {
		// Options are opaque, just test that we can pass them
	}

	cfg, err := LoadConfiguration("", option)
	if err != nil {
		t.Fatalf("LoadConfiguration() with options error = %v", err)
	}
	if cfg == nil {
		t.Fatal("LoadConfiguration() returned nil config")
	}
}

func TestPrepare(t *testing.T) {
	data, err := Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Prepare() returned empty data")
	}
	if _, err = unmarshalConfig(data, &Config{}, true); err != nil {
		t.Errorf("Prepared config is not valid: %v", err)
	}
}

func TestDump(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	cfg.Transform.RootValue = 37.5
	cfg.Transform.RootValueRules = []RootValueRuleConfig{{Match: "vant", RootValue: 16}}

	data, err := Dump(cfg)
	if err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	for _, want := range []string{"root_value: 37.5", "prop_list:", "match: vant", "extensions:"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("Dump() output does not contain %q:\n%s", want, data)
		}
	}

	loaded, err := unmarshalConfig(data, &Config{}, true)
	if err != nil {
		t.Fatalf("dumped config is not valid: %v", err)
	}
	if loaded.Transform.RootValue != 37.5 || len(loaded.Transform.RootValueRules) != 1 {
		t.Errorf("dumped config differs: %+v", loaded.Transform)
	}
}

func TestTransformConfig_Options(t *testing.T) {
	tc := TransformConfig{
		RootValue:         75,
		PropList:          []string{"*"},
		UnitPrecision:     2,
		MinPixelValue:     1,
		SelectorBlackList: []string{".x"},
		Replace:           true,
		MediaQuery:        true,
		Exclude:           []string{"vendor/"},
		RootValueRules:    []RootValueRuleConfig{{Match: "a", RootValue: 10}, {Match: "b", RootValue: 20}},
	}
	opts := tc.Options()
	if opts.RootValue != 75 || opts.UnitPrecision != 2 || opts.MinPixelValue != 1 || !opts.Replace || !opts.MediaQuery {
		t.Errorf("unexpected options: %+v", opts)
	}
	if len(opts.RootValueRules) != 2 || opts.RootValueRules[1].Match != "b" || opts.RootValueRules[1].RootValue != 20 {
		t.Errorf("RootValueRules = %+v", opts.RootValueRules)
	}
	if !slices.Equal(opts.Exclude, []string{"vendor/"}) || !slices.Equal(opts.SelectorBlackList, []string{".x"}) {
		t.Errorf("unexpected lists: %+v", opts)
	}
}

func TestCleanFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"styles.zip", "styles.zip"},
		{"..hidden", "hidden"},
		{"a/b", "ab"},
		{"", "_bad_file_name_"},
		{"...", "_bad_file_name_"},
	}
	for _, tt := range tests {
		if got := CleanFileName(tt.in); got != tt.want {
			t.Errorf("CleanFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
