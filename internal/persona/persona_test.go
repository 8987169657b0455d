package persona

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	assert.Equal(t, Pirate, Parse(" Pirate "))
	assert.Equal(t, Default, Parse(""))
	assert.Equal(t, Default, Parse("robot"))
}

func TestLookupVoiceTable(t *testing.T) {
	def := Lookup(Default)
	assert.Equal(t, "en-US-sarah", def.VoiceID)
	assert.Zero(t, def.PitchPercent)

	p := Lookup(Pirate)
	assert.Equal(t, "en-US-davis", p.VoiceID)
	assert.Equal(t, -15, p.PitchPercent)
	assert.Equal(t, -10, p.SpeedPercent)

	assert.Equal(t, def, Lookup(Persona("unknown")))
	assert.True(t, Pirate.IsAlternate())
	assert.False(t, Default.IsAlternate())
}
