package descriptor

import "regexp"

var placeholderRE = regexp.MustCompile(`\$\{([A-Za-z0-9_.\-]+)\}`)

// expand replaces ${name} placeholders with explicit variables first and the
// environment second. Unknown placeholders are left untouched.
func expand(src []byte, o *options) []byte {
	return placeholderRE.ReplaceAllFunc(src, func(m []byte) []byte {
		name := string(placeholderRE.FindSubmatch(m)[1])
		if v, ok := o.vars[name]; ok {
			return []byte(v)
		}
		if o.lookupEnv != nil {
			if v, ok := o.lookupEnv(name); ok {
				return []byte(v)
			}
		}
		return m
	})
}
