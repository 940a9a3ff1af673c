package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeflect(t *testing.T) {
	tests := []struct {
		text    string
		deflect bool
	}{
		{"Can you elaborate on this in detail?", true},
		{"EXPLAIN IN DEPTH how enzymes work", true},
		{"give me a step-by-step derivation", true},
		{"Walk me through the Krebs cycle", true},
		{"What is photosynthesis?", false},
		{"summarise page 3", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			d := Deflect(tt.text)
			if !tt.deflect {
				assert.Nil(t, d)
				return
			}
			if assert.NotNil(t, d) {
				assert.Equal(t, DeflectionReply, d.Reply)
				assert.True(t, d.SkipGeneration)
			}
		})
	}
}

func TestDeflect_EveryTriggerMatches(t *testing.T) {
	for _, trigger := range DeflectionTriggers {
		assert.NotNil(t, Deflect("please "+trigger+" thanks"), trigger)
	}
}
