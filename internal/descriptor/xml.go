package descriptor

import (
	"encoding/xml"
	"fmt"
	"io"
)

// Parse reads an XML descriptor.
func Parse(r io.Reader, opts ...Option) (*Descriptor, Warnings, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("reading descriptor: %w", err)
	}
	return parseXML(data, newOptions(opts))
}

func parseXML(data []byte, o *options) (*Descriptor, Warnings, error) {
	var doc rawDocument
	if err := xml.Unmarshal(expand(data, o), &doc); err != nil {
		return nil, nil, fmt.Errorf("parsing descriptor XML: %w", err)
	}
	return build(&doc, o)
}

// WriteXML renders the full descriptor as XML. Parsing the output yields an
// equal Descriptor.
func WriteXML(w io.Writer, d *Descriptor) error {
	out, err := xml.MarshalIndent(toRaw(d), "", "    ")
	if err != nil {
		return fmt.Errorf("encoding descriptor XML: %w", err)
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	if _, err := w.Write(out); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n")
	return err
}
