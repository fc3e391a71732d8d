package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"gopkg.in/yaml.v3"
)

const redacted = "********"

// MarshalYAML renders the descriptor in the YAML front-end's shape, so the
// output can be loaded back.
func MarshalYAML(d *Descriptor) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(toRaw(d)); err != nil {
		return nil, fmt.Errorf("encoding descriptor YAML: %w", err)
	}
	_ = enc.Close()
	return buf.Bytes(), nil
}

// MarshalJSON renders the typed descriptor. Passwords are never included.
func MarshalJSON(d *Descriptor) ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// Redacted returns a copy with every stored password masked.
func (d *Descriptor) Redacted() *Descriptor {
	c := d.Clone()
	for i := range c.DBConfigs {
		if c.DBConfigs[i].Password != "" {
			c.DBConfigs[i].Password = redacted
		}
	}
	for i := range c.RemoteInstances {
		if c.RemoteInstances[i].TrustedPassword != "" {
			c.RemoteInstances[i].TrustedPassword = redacted
		}
	}
	return c
}

// Clone returns a deep copy.
func (d *Descriptor) Clone() *Descriptor {
	c := *d
	c.DBConfigs = slices.Clone(d.DBConfigs)
	c.RemoteInstances = slices.Clone(d.RemoteInstances)
	c.Mounts = slices.Clone(d.Mounts)
	c.QueryProcessors = slices.Clone(d.QueryProcessors)
	c.Handlers = make([]HandlerDef, len(d.Handlers))
	for i, h := range d.Handlers {
		h.Methods = slices.Clone(h.Methods)
		h.Profiles = slices.Clone(h.Profiles)
		h.Properties = slices.Clone(h.Properties)
		h.Filter.Properties = slices.Clone(h.Filter.Properties)
		if h.Edit != nil {
			e := *h.Edit
			h.Edit = &e
		}
		c.Handlers[i] = h
	}
	if d.Handlers == nil {
		c.Handlers = nil
	}
	c.Aspects = make([]AspectDef, len(d.Aspects))
	for i, a := range d.Aspects {
		a.Properties = slices.Clone(a.Properties)
		c.Aspects[i] = a
	}
	if d.Aspects == nil {
		c.Aspects = nil
	}
	return &c
}

// Diff returns a line diff between the YAML renderings of a and b, with
// passwords masked. It is empty when the descriptors are equal.
func Diff(a, b *Descriptor) (string, error) {
	left, err := MarshalYAML(a.Redacted())
	if err != nil {
		return "", err
	}
	right, err := MarshalYAML(b.Redacted())
	if err != nil {
		return "", err
	}
	if bytes.Equal(left, right) {
		return "", nil
	}

	dmp := diffmatchpatch.New()
	l, r, lines := dmp.DiffLinesToChars(string(left), string(right))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(l, r, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffEqual:
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			sb.WriteString(prefix)
			sb.WriteString(line)
		}
	}
	return sb.String(), nil
}

// Save writes the descriptor to path in the format implied by its
// extension. The write is atomic: a temp file is renamed over the target.
func Save(path string, d *Descriptor) error {
	format, err := FormatForPath(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	switch format {
	case FormatXML:
		err = WriteXML(&buf, d)
	case FormatYAML:
		var out []byte
		out, err = MarshalYAML(d)
		buf.Write(out)
	default:
		return fmt.Errorf("saving as %s: %w", format, ErrUnsupportedFormat)
	}
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating descriptor directory: %w", err)
	}
	temp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(buf.Bytes()); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
