package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestExpandEnv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		env   map[string]string
		want  string
	}{
		{
			name:  "simple substitution with {{.VAR}}",
			input: "ws_url: {{.RELAY_WS_URL}}",
			env:   map[string]string{"RELAY_WS_URL": "ws://relay:8000/ws"},
			want:  "ws_url: ws://relay:8000/ws",
		},
		{
			name:  "literal ${VAR} is NOT expanded",
			input: "source: ${CLIENT}",
			env:   map[string]string{"CLIENT": "ui"},
			want:  "source: ${CLIENT}",
		},
		{
			name:  "multiple substitutions in one line",
			input: "health_url: http://{{.HOST}}:{{.PORT}}/health",
			env:   map[string]string{"HOST": "relay", "PORT": "8000"},
			want:  "health_url: http://relay:8000/health",
		},
		{
			name:  "missing variable expands to empty",
			input: "health_grpc_addr: {{.MISSING_VAR}}",
			env:   map[string]string{},
			want:  "health_grpc_addr: ",
		},
		{
			name:  "value containing equals sign",
			input: "token: {{.TOKEN}}",
			env:   map[string]string{"TOKEN": "a=b=c"},
			want:  "token: a=b=c",
		},
		{
			name:  "malformed template passes through",
			input: "ws_url: {{.UNTERMINATED",
			env:   map[string]string{},
			want:  "ws_url: {{.UNTERMINATED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			result := ExpandEnv([]byte(tt.input))
			assert.Equal(t, tt.want, string(result))
		})
	}
}

func TestExpandEnv_ProducesParsableYAML(t *testing.T) {
	t.Setenv("RELAY_HOST", "relay.internal")

	input := `
relay:
  ws_url: "ws://{{.RELAY_HOST}}/ws"
  health_url: "http://{{.RELAY_HOST}}/health"
`
	var cfg Config
	require.NoError(t, yaml.Unmarshal(ExpandEnv([]byte(input)), &cfg))
	require.NotNil(t, cfg.Relay)
	assert.Equal(t, "ws://relay.internal/ws", cfg.Relay.WSURL)
	assert.Equal(t, "http://relay.internal/health", cfg.Relay.HealthURL)
}

func TestExpandEnvWithEmptyInput(t *testing.T) {
	result := ExpandEnv([]byte(""))
	assert.Equal(t, "", string(result), "Empty input should return empty output")
}
