package descriptor

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Format names a descriptor syntax.
type Format string

const (
	FormatXML  Format = "xml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
	FormatHCL  Format = "hcl"
)

// FormatForPath picks the format from a file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		return FormatXML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	case ".hcl":
		return FormatHCL, nil
	default:
		return "", fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
}

// Load reads the descriptor at path, choosing the front-end by extension.
func Load(path string, opts ...Option) (*Descriptor, Warnings, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: descriptor path is operator supplied
	if err != nil {
		return nil, nil, fmt.Errorf("reading descriptor: %w", err)
	}
	return loadBytes(data, format, path, newOptions(opts))
}

// LoadFS reads a descriptor from fsys, used for embedded defaults.
func LoadFS(fsys fs.FS, name string, opts ...Option) (*Descriptor, Warnings, error) {
	format, err := FormatForPath(name)
	if err != nil {
		return nil, nil, err
	}
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, nil, fmt.Errorf("reading descriptor: %w", err)
	}
	return loadBytes(data, format, name, newOptions(opts))
}

// LoadBytes parses data in the given format.
func LoadBytes(data []byte, format Format, opts ...Option) (*Descriptor, Warnings, error) {
	return loadBytes(data, format, "registry."+string(format), newOptions(opts))
}

func loadBytes(data []byte, format Format, name string, o *options) (*Descriptor, Warnings, error) {
	switch format {
	case FormatXML:
		return parseXML(data, o)
	case FormatYAML, FormatJSON, FormatTOML:
		return parseStructured(data, string(format), o)
	case FormatHCL:
		return parseHCL(data, name, o)
	default:
		return nil, nil, fmt.Errorf("format %q: %w", format, ErrUnsupportedFormat)
	}
}
