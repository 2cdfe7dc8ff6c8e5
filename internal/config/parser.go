package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format is the on-disk config syntax.
type Format string

const (
	FormatJSONC Format = "jsonc"
	FormatYAML  Format = "yaml"
)

// FormatForPath picks YAML for .yaml/.yml files and JSONC otherwise.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSONC
	}
}

// Parse decodes content in format over base, then validates the result.
func Parse(content string, format Format, base Config) (Config, []Warning, error) {
	cfg, warnings, err := decode(content, format, base)
	if err != nil {
		return Config{}, nil, err
	}
	validated, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, append(warnings, validated...), nil
}

func decode(content string, format Format, base Config) (Config, []Warning, error) {
	cfg := base
	var warnings []Warning

	if strings.TrimSpace(content) != "" {
		var (
			p   payload
			err error
		)
		switch format {
		case FormatYAML:
			p, err = parseYAML(content)
		case FormatJSONC, "":
			p, err = parseJSONC(content)
		default:
			return Config{}, nil, fmt.Errorf("unsupported config format %q", format)
		}
		if err != nil {
			return Config{}, nil, err
		}
		if warnings, err = p.applyTo(&cfg); err != nil {
			return Config{}, nil, err
		}
	}
	return cfg, warnings, nil
}
