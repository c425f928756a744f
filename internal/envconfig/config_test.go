package envconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	t.Setenv("ZTAR_DEBUG", "")
	LoadConfig()
	require.False(t, Debug)
	t.Setenv("ZTAR_DEBUG", "false")
	LoadConfig()
	require.False(t, Debug)
	t.Setenv("ZTAR_DEBUG", "1")
	LoadConfig()
	require.True(t, Debug)
	t.Setenv("ZTAR_DEBUG", "yes please")
	LoadConfig()
	require.True(t, Debug)
}

func TestSizeLimit(t *testing.T) {
	tests := map[string]struct {
		value  string
		expect int
	}{
		"unset":    {value: "", expect: 16 * 1024},
		"valid":    {value: "4096", expect: 4096},
		"quoted":   {value: "'1024'", expect: 1024},
		"zero":     {value: "0", expect: 0},
		"negative": {value: "-1", expect: 16 * 1024},
		"garbage":  {value: "lots", expect: 16 * 1024},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("ZTAR_SIZE_LIMIT", tt.value)
			LoadConfig()
			assert.Equal(t, tt.expect, SizeLimit)
		})
	}
}

func TestHuggingFaceOverrides(t *testing.T) {
	t.Setenv("HUGGINGFACE_API_URL", "http://127.0.0.1:9999/api/models/")
	t.Setenv("HF_API_KEY", "\"secret\"")
	LoadConfig()
	assert.Equal(t, "http://127.0.0.1:9999/api/models/", HuggingFaceAPI)
	assert.Equal(t, "https://huggingface.co/", HuggingFaceCDN)
	assert.Equal(t, "secret", HFAPIKey)
	assert.Contains(t, Values(), "ZTAR_ALLOCATION")
}
