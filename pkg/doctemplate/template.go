// Package doctemplate parses reflection template definitions and renders their
// markdown body into document blocks with field placeholders resolved.
package doctemplate

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// TodayDefault resolves to the current date when defaults are computed.
	TodayDefault = "@today"
	// DefaultEmptyText stands in for values left blank.
	DefaultEmptyText = "（記入なし）"
	// DateLayout is the format used for date defaults.
	DateLayout = "2006-01-02"
)

var (
	fieldNamePattern   = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	placeholderPattern = regexp.MustCompile(`\{\{\s*([a-z][a-z0-9_]*)\s*\}\}`)
)

// Field describes one editable input of a reflection.
type Field struct {
	Name      string `yaml:"name" json:"name"`
	Label     string `yaml:"label" json:"label"`
	Default   string `yaml:"default" json:"default,omitempty"`
	Required  bool   `yaml:"required" json:"required"`
	Multiline bool   `yaml:"multiline" json:"multiline,omitempty"`
}

// Template is a named reflection definition.
type Template struct {
	Name      string  `yaml:"name" json:"name"`
	Title     string  `yaml:"title" json:"title"`
	EmptyText string  `yaml:"empty_text" json:"emptyText"`
	Fields    []Field `yaml:"fields" json:"fields"`
	Body      string  `yaml:"body" json:"-"`
}

// Parse decodes and validates a YAML template definition.
func Parse(data []byte) (*Template, error) {
	var tpl Template
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	if strings.TrimSpace(tpl.Name) == "" {
		return nil, fmt.Errorf("template name is required")
	}
	if strings.TrimSpace(tpl.Body) == "" {
		return nil, fmt.Errorf("template %s has an empty body", tpl.Name)
	}
	if len(tpl.Fields) == 0 {
		return nil, fmt.Errorf("template %s declares no fields", tpl.Name)
	}
	seen := make(map[string]struct{}, len(tpl.Fields))
	for _, f := range tpl.Fields {
		if !fieldNamePattern.MatchString(f.Name) {
			return nil, fmt.Errorf("template %s: invalid field name %q", tpl.Name, f.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return nil, fmt.Errorf("template %s: duplicate field %q", tpl.Name, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	if tpl.EmptyText == "" {
		tpl.EmptyText = DefaultEmptyText
	}
	if tpl.Title == "" {
		tpl.Title = "{{student_name}}_{{lesson_date}}"
	}
	return &tpl, nil
}

// LoadFile reads a template definition from disk.
func LoadFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// FieldNames lists field names in declaration order.
func (t *Template) FieldNames() []string {
	names := make([]string, 0, len(t.Fields))
	for _, f := range t.Fields {
		names = append(names, f.Name)
	}
	return names
}

// HasField reports whether name is a declared field.
func (t *Template) HasField(name string) bool {
	for _, f := range t.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Defaults returns the baseline value of every field, resolving date sentinels against now.
func (t *Template) Defaults(now time.Time) map[string]string {
	values := make(map[string]string, len(t.Fields))
	for _, f := range t.Fields {
		value := f.Default
		if value == TodayDefault {
			value = now.Format(DateLayout)
		}
		values[f.Name] = value
	}
	return values
}

// Filter keeps only declared fields from values, dropping everything else.
func (t *Template) Filter(values map[string]string) map[string]string {
	filtered := make(map[string]string, len(t.Fields))
	for _, f := range t.Fields {
		if v, ok := values[f.Name]; ok {
			filtered[f.Name] = v
		}
	}
	return filtered
}

// Missing lists required fields whose value is blank, in declaration order.
func (t *Template) Missing(values map[string]string) []string {
	var missing []string
	for _, f := range t.Fields {
		if f.Required && strings.TrimSpace(values[f.Name]) == "" {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// Placeholders returns every placeholder name referenced by the title or body, sorted.
func (t *Template) Placeholders() []string {
	set := make(map[string]struct{})
	for _, src := range []string{t.Title, t.Body} {
		for _, m := range placeholderPattern.FindAllStringSubmatch(src, -1) {
			set[m[1]] = struct{}{}
		}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RenderTitle resolves the document title. Blank values render as nothing.
func (t *Template) RenderTitle(values map[string]string) string {
	title := placeholderPattern.ReplaceAllStringFunc(t.Title, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		return strings.TrimSpace(values[name])
	})
	return strings.TrimSpace(title)
}

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// DisplayValue returns the rendered form of a value. Line breaks are
// normalised to "\n" so span offsets match the text the document stores.
func (t *Template) DisplayValue(value string) string {
	value = strings.TrimSpace(lineBreaks.Replace(value))
	if value == "" {
		return t.EmptyText
	}
	return value
}
