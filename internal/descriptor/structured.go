package descriptor

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// parseStructured reads a YAML, JSON or TOML descriptor. The documents use
// the XML element and attribute names as keys; repeated elements become
// lists and a single element may be written as a plain map.
func parseStructured(data []byte, format string, o *options) (*Descriptor, Warnings, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(bytes.NewReader(expand(data, o))); err != nil {
		return nil, nil, fmt.Errorf("parsing descriptor %s: %w", format, err)
	}

	var doc rawDocument
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		scalarToStringHook,
		listToStringHook,
	))
	if err := v.Unmarshal(&doc, hook); err != nil {
		return nil, nil, fmt.Errorf("decoding descriptor %s: %w", format, err)
	}
	return build(&doc, o)
}

// scalarToStringHook keeps booleans and numbers in their literal form when
// the target is a string. The weakly typed default would turn true into "1".
func scalarToStringHook(from, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String {
		return data, nil
	}
	switch v := data.(type) {
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	return data, nil
}

// listToStringHook accepts lists for comma separated attributes such as
// methods and profiles.
func listToStringHook(from, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String || from.Kind() != reflect.Slice {
		return data, nil
	}
	items, ok := data.([]any)
	if !ok {
		return data, nil
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprint(item))
	}
	return strings.Join(parts, ","), nil
}
