package pathspec

import (
	"reflect"
	"testing"
)

func TestParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    string
		want    []string
		wantErr bool
	}{
		{name: "no params", path: "/api/sensors", want: []string{}},
		{name: "one param", path: "/api/sensors/{serialNumber}", want: []string{"serialNumber"}},
		{name: "regex", path: "/api/sensors/{serialNumber:[A-Z0-9]+}", want: []string{"serialNumber"}},
		{name: "two in a segment", path: "/x/{a}-{b}", want: []string{"a", "b"}},
		{name: "mismatched", path: "/x/{a}-{b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Params(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Params(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}

			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Params(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":                            "/",
		"/api//sensors//":             "/api/sensors",
		"/api/sensors/{serialNumber}": "/api/sensors/{serialNumber}",
		"/api///sensors/":             "/api/sensors",
	}

	for in, want := range tests {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidName(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"serialNumber": true,
		"a":            true,
		"abc_123":      true,
		"":             false,
		"1abc":         false,
		"_abc":         false,
		"abc-def":      false,
		"abc.def":      false,
		"abc def":      false,
	}

	for in, want := range tests {
		if got := ValidName(in); got != want {
			t.Errorf("ValidName(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestExpand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		template string
		values   map[string]string
		want     string
		wantErr  bool
	}{
		{
			name:     "reading topic",
			template: "sensors/{serialNumber}/reading",
			values:   map[string]string{"serialNumber": "DP065KS3"},
			want:     "sensors/DP065KS3/reading",
		},
		{
			name:     "no params",
			template: "sensors/all",
			want:     "sensors/all",
		},
		{
			name:     "missing value",
			template: "sensors/{serialNumber}/reading",
			wantErr:  true,
		},
		{
			name:     "wildcard in value",
			template: "sensors/{serialNumber}/reading",
			values:   map[string]string{"serialNumber": "a/b"},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Expand(tt.template, tt.values)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expand() error = %v, wantErr %v", err, tt.wantErr)
			}

			if got != tt.want {
				t.Errorf("Expand() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		actual string
		want   map[string]string
		ok     bool
	}{
		{name: "match", actual: "sensors/DP065KS3/command", want: map[string]string{"serialNumber": "DP065KS3"}, ok: true},
		{name: "other suffix", actual: "sensors/DP065KS3/reading"},
		{name: "too short", actual: "sensors/DP065KS3"},
		{name: "empty param", actual: "sensors//command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := Match("sensors/{serialNumber}/command", tt.actual)
			if ok != tt.ok {
				t.Fatalf("Match(%q) ok = %v, want %v", tt.actual, ok, tt.ok)
			}

			if ok && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Match(%q) = %v, want %v", tt.actual, got, tt.want)
			}
		})
	}
}
