package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebugDefault(t *testing.T) {
	SetDebug(false)
	assert.False(t, IsDebug())
}

func TestSetDebug(t *testing.T) {
	SetDebug(false)

	SetDebug(true)
	assert.True(t, IsDebug())

	SetDebug(false)
	assert.False(t, IsDebug())
}

func TestSetUnminifiedAssets(t *testing.T) {
	SetUnminifiedAssets(true)
	assert.True(t, UnminifiedAssets())

	SetUnminifiedAssets(false)
	assert.False(t, UnminifiedAssets())
}
