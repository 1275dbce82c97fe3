package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv expands environment variables in YAML content using Go templates.
// Uses {{.VAR_NAME}} syntax so literal $ in URLs and tokens is never touched.
//
// Examples:
//   - ws_url: "{{.RELAY_WS_URL}}" → value of RELAY_WS_URL
//   - health_url: "http://{{.RELAY_HOST}}:{{.RELAY_PORT}}/health"
//
// Missing variables expand to empty string. If the content is not a valid
// template it is returned unchanged and the YAML parser reports the problem.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		// Split only on first = to handle values with = in them
		if key, value, ok := strings.Cut(env, "="); ok && key != "" {
			envMap[key] = value
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, envMap); err != nil {
		return data
	}

	return buf.Bytes()
}
