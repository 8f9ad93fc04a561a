package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv substitutes environment variables referenced with {{.VAR}}
// template syntax into the YAML content. Template syntax is used instead of
// $VAR so that literal dollar signs survive untouched, e.g. the token
// patterns in bash permission rules or passwords containing $.
//
// A missing variable expands to the empty string; required fields are
// enforced afterwards by validation. Content that fails to parse or execute
// as a template is returned unchanged so plain YAML always passes through.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("settings").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok && key != "" {
			env[key] = value
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, env); err != nil {
		return data
	}
	return buf.Bytes()
}
