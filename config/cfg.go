package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"

	validator "github.com/go-playground/validator/v10"
	"github.com/rupor-github/gencfg"
	"go.uber.org/multierr"
	yaml "gopkg.in/yaml.v3"

	"pxtorem/pxtorem"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	RootValueRuleConfig struct {
		Match     string  `yaml:"match" validate:"required"`
		RootValue float64 `yaml:"root_value" validate:"gt=0"`
	}

	TransformConfig struct {
		RootValue         float64               `yaml:"root_value" validate:"gt=0"`
		PropList          []string              `yaml:"prop_list" validate:"dive,required"`
		UnitPrecision     int                   `yaml:"unit_precision" validate:"min=0,max=15"`
		MinPixelValue     float64               `yaml:"min_pixel_value" validate:"gte=0"`
		SelectorBlackList []string              `yaml:"selector_black_list" validate:"dive,required"`
		Replace           bool                  `yaml:"replace"`
		MediaQuery        bool                  `yaml:"media_query"`
		Exclude           []string              `yaml:"exclude" validate:"dive,required"`
		RootValueRules    []RootValueRuleConfig `yaml:"root_value_rules" validate:"dive"`
	}

	ProcessingConfig struct {
		Extensions []string `yaml:"extensions" validate:"min=1,dive,required,startswith=."`
		Workers    int      `yaml:"workers" validate:"gte=0"`
	}

	Config struct {
		Version    int              `yaml:"version" validate:"eq=1"`
		Transform  TransformConfig  `yaml:"transform"`
		Processing ProcessingConfig `yaml:"processing"`
		Logging    LoggingConfig    `yaml:"logging"`
		Reporting  ReporterConfig   `yaml:"reporting"`
	}
)

// Options converts transform section into rewriter options.
func (conf *TransformConfig) Options() pxtorem.Options {
	opts := pxtorem.Options{
		RootValue:         conf.RootValue,
		PropList:          conf.PropList,
		UnitPrecision:     conf.UnitPrecision,
		MinPixelValue:     conf.MinPixelValue,
		SelectorBlackList: conf.SelectorBlackList,
		Replace:           conf.Replace,
		MediaQuery:        conf.MediaQuery,
		Exclude:           conf.Exclude,
	}
	for _, r := range conf.RootValueRules {
		opts.RootValueRules = append(opts.RootValueRules, pxtorem.RootValueRule{Match: r.Match, RootValue: r.RootValue})
	}
	return opts
}

// NOTE: regular expressions may legitimately contain template delimiters, so
// pattern fields are never expanded.
var requiredOptions = append([]func(*gencfg.ProcessingOptions){},
	gencfg.WithDoNotExpandField("prop_list"),
	gencfg.WithDoNotExpandField("selector_black_list"),
	gencfg.WithDoNotExpandField("exclude"),
	gencfg.WithDoNotExpandField("match"),
)

// checkTransform makes sure rewriter could be built from loaded values:
// patterns compile and property list is well formed.
func checkTransform(sl validator.StructLevel) {
	cfg, ok := sl.Current().Interface().(Config)
	if !ok {
		return
	}
	if _, err := pxtorem.New(cfg.Transform.Options(), nil); err != nil {
		sl.ReportError(cfg.Transform, "transform", "Transform", "rewriter", err.Error())
	}
}

// describe makes validation errors readable, validator does not print
// parameters of failed checks.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	var res error
	for _, fe := range verrs {
		if fe.Param() != "" {
			res = multierr.Append(res, fmt.Errorf("%s: failed '%s' check: %s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			res = multierr.Append(res, fmt.Errorf("%s: failed '%s' check", fe.Namespace(), fe.Tag()))
		}
	}
	return res
}

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg, gencfg.WithAdditionalChecks(checkTransform)); err != nil {
			return nil, describe(err)
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, append(requiredOptions, options...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl, requiredOptions...)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}
