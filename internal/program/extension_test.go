package program

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtensionRegistry_Build(t *testing.T) {
	reg := ExtensionRegistry{
		"x86": func(payload string) (ExtensionPayload, error) {
			return stubPayload{size: len(payload)}, nil
		},
	}

	ext, err := reg.Build("x86", "abc")
	require.NoError(t, err)
	assert.Equal(t, "x86", ext.Name)
	assert.Equal(t, 3, ext.Size())
}

func TestExtensionRegistry_UnknownName(t *testing.T) {
	reg := ExtensionRegistry{}
	_, err := reg.Build("bogus", "")
	assert.Error(t, err)
}

func TestExtensionRegistry_FactoryError(t *testing.T) {
	reg := ExtensionRegistry{
		"broken": func(payload string) (ExtensionPayload, error) {
			return nil, assert.AnError
		},
	}
	_, err := reg.Build("broken", "")
	assert.Error(t, err)
}
