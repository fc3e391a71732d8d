package descriptor

import (
	"encoding/xml"
	"fmt"
	"io"
)

// SecretResolver turns a stored secret reference into its plain value.
type SecretResolver func(ref string) (string, error)

type exportDocument struct {
	XMLName       xml.Name         `xml:"wso2registry"`
	CurrentConfig *string          `xml:"currentConfig,omitempty"`
	DBConfigs     []exportDBConfig `xml:"dbConfig"`
}

type exportDBConfig struct {
	Name       string `xml:"name,attr"`
	URL        string `xml:"url"`
	UserName   string `xml:"userName"`
	Password   string `xml:"password"`
	DriverName string `xml:"driverName"`
}

// ExportXML writes the legacy configuration export: the current dbConfig
// name and the connection settings of every dbConfig, with passwords
// resolved through resolve (nil leaves them as written).
func ExportXML(w io.Writer, d *Descriptor, resolve SecretResolver) error {
	doc := exportDocument{}
	if _, ok := d.DBConfig(d.CurrentDBConfig); ok {
		doc.CurrentConfig = strPtr(d.CurrentDBConfig)
	}
	for _, c := range d.DBConfigs {
		password := c.Password
		if resolve != nil && password != "" {
			var err error
			if password, err = resolve(password); err != nil {
				return fmt.Errorf("dbConfig %q: resolving password: %w", c.Name, err)
			}
		}
		doc.DBConfigs = append(doc.DBConfigs, exportDBConfig{
			Name:       c.Name,
			URL:        c.URL,
			UserName:   c.UserName,
			Password:   password,
			DriverName: c.DriverName,
		})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	if _, err := w.Write(out); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n")
	return err
}
