package util_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flowgate/internal/util"
)

type light string

var transitions = util.StateTransitions[light]{
	"green":  util.SetOf[light]("yellow"),
	"yellow": util.SetOf[light]("red"),
	"red":    util.SetOf[light]("green", "off"),
	"off":    {},
}

func TestSetOf(t *testing.T) {
	s := util.SetOf("a", "b", "a")
	assert.Len(t, s, 2)
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("c"))
	assert.False(t, s.IsEmpty())
	assert.True(t, util.Set[int]{}.IsEmpty())
}

func TestCanTransition(t *testing.T) {
	assert.True(t, transitions.CanTransition("green", "yellow"))
	assert.True(t, transitions.CanTransition("red", "off"))
	assert.False(t, transitions.CanTransition("green", "red"))
	assert.False(t, transitions.CanTransition("off", "green"))
	assert.False(t, transitions.CanTransition("blue", "green"))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, transitions.IsTerminal("off"))
	assert.False(t, transitions.IsTerminal("red"))
	assert.False(t, transitions.IsTerminal("unknown"))
}
