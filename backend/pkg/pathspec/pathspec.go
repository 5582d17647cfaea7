// Package pathspec handles templated paths and topics such as
// "sensors/{serialNumber}/reading", shared by the HTTP router and MQTT builder.
package pathspec

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Sanitize collapses repeated slashes and drops the trailing one.
func Sanitize(path string) string {
	clean := path
	for strings.Contains(clean, "//") {
		clean = strings.ReplaceAll(clean, "//", "/")
	}

	clean = strings.TrimSuffix(clean, "/")
	if clean == "" {
		clean = "/"
	}

	return clean
}

// Params returns the parameter names of a template in order of appearance.
// Regex matchers ({id:[0-9]+}) are stripped from the names.
func Params(path string) ([]string, error) {
	if strings.Count(path, "{") != strings.Count(path, "}") {
		return nil, errors.New("mismatched number of '{' and '}' in path")
	}

	names := []string{}
	start := -1

	for i, ch := range path {
		switch {
		case ch == '{':
			start = i + 1
		case ch == '}' && start >= 0:
			name, _, _ := strings.Cut(path[start:i], ":")
			if name != "" {
				names = append(names, name)
			}

			start = -1
		}
	}

	return names, nil
}

// ValidName reports whether name starts with an ASCII letter and continues
// with letters, digits or underscores.
func ValidName(name string) bool {
	if name == "" {
		return false
	}

	for i, r := range name {
		if i == 0 {
			if !isASCIILetter(r) {
				return false
			}

			continue
		}

		if !isASCIILetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}

	return true
}

// Expand fills every {param} segment of a slash separated template.
func Expand(template string, values map[string]string) (string, error) {
	segments := strings.Split(template, "/")

	for i, seg := range segments {
		name, ok := segmentParam(seg)
		if !ok {
			continue
		}

		v, ok := values[name]
		if !ok || v == "" {
			return "", fmt.Errorf("missing value for parameter %s", name)
		}

		if strings.ContainsAny(v, "/+#") {
			return "", fmt.Errorf("invalid value %q for parameter %s", v, name)
		}

		segments[i] = v
	}

	return strings.Join(segments, "/"), nil
}

// Match checks a concrete path against a template and returns the parameter
// values on success.
func Match(template, actual string) (map[string]string, bool) {
	want := strings.Split(template, "/")
	got := strings.Split(actual, "/")

	if len(want) != len(got) {
		return nil, false
	}

	values := map[string]string{}

	for i, seg := range want {
		if name, ok := segmentParam(seg); ok {
			if got[i] == "" {
				return nil, false
			}

			values[name] = got[i]

			continue
		}

		if seg != got[i] {
			return nil, false
		}
	}

	return values, true
}

func segmentParam(seg string) (string, bool) {
	if !strings.HasPrefix(seg, "{") || !strings.HasSuffix(seg, "}") {
		return "", false
	}

	name, _, _ := strings.Cut(seg[1:len(seg)-1], ":")

	return name, true
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
