package plugin

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Property is one configured name/value pair. XML properties carry raw
// markup instead of a value.
type Property struct {
	Name  string
	Type  string
	Value string
	XML   string
}

// IsXML reports whether the property carries markup.
func (p Property) IsXML() bool {
	return p.Type == "xml"
}

// Properties keeps configuration order.
type Properties []Property

// Get returns the value of the first property named name. For XML
// properties the markup is returned.
func (ps Properties) Get(name string) (string, bool) {
	for _, p := range ps {
		if p.Name == name {
			if p.IsXML() {
				return p.XML, true
			}
			return p.Value, true
		}
	}
	return "", false
}

// GetDefault returns the value of name or def when it is absent.
func (ps Properties) GetDefault(name, def string) string {
	if v, ok := ps.Get(name); ok {
		return v
	}
	return def
}

// Map returns the properties as a map. Later duplicates win.
func (ps Properties) Map() map[string]any {
	m := make(map[string]any, len(ps))
	for _, p := range ps {
		if p.IsXML() {
			m[p.Name] = p.XML
		} else {
			m[p.Name] = p.Value
		}
	}
	return m
}

// Decode fills target (a pointer to a struct with mapstructure tags) from
// the properties. Values are converted weakly: "30s" into a
// time.Duration, "a,b" into a []string, "true" into a bool.
func (ps Properties) Decode(target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			commaListHook,
		),
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return fmt.Errorf("creating property decoder: %w", err)
	}
	if err := dec.Decode(ps.Map()); err != nil {
		return fmt.Errorf("decoding properties: %w", err)
	}
	return nil
}

// commaListHook splits "a, b" into a trimmed []string, dropping empty items.
func commaListHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Slice || to.Elem().Kind() != reflect.String {
		return data, nil
	}
	raw, _ := data.(string)
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, nil
}
