// Package persona maps a persona tag to its voice and prompt settings.
package persona

import "strings"

type Persona string

const (
	Default Persona = "default"
	Pirate  Persona = "pirate"
)

// Profile is the static configuration of a persona.
type Profile struct {
	Persona        Persona
	VoiceID        string
	PitchPercent   int
	SpeedPercent   int
	Style          string
	AssistantLabel string
	UserLabel      string
	Prompt         string
}

var table = map[Persona]Profile{
	Default: {
		Persona:        Default,
		VoiceID:        "en-US-sarah",
		Style:          "friendly",
		AssistantLabel: "VoxAura",
		UserLabel:      "User",
		Prompt:         "You are VoxAura, a helpful voice assistant. Respond naturally and helpfully.",
	},
	Pirate: {
		Persona:        Pirate,
		VoiceID:        "en-US-davis",
		PitchPercent:   -15,
		SpeedPercent:   -10,
		Style:          "gruff",
		AssistantLabel: "Captain VoxBeard",
		UserLabel:      "Crew Member",
		Prompt: "You are Captain VoxBeard, a seasoned pirate voice assistant with a heart of gold. " +
			"Speak with gruff warmth, use sea metaphors and call the user a trusted crew member, " +
			"but keep the answer genuinely helpful.",
	},
}

// Parse normalizes a client supplied persona name. Unknown names map to Default.
func Parse(name string) Persona {
	p := Persona(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := table[p]; ok {
		return p
	}
	return Default
}

// Lookup returns the profile for p, falling back to the default profile.
func Lookup(p Persona) Profile {
	if prof, ok := table[p]; ok {
		return prof
	}
	return table[Default]
}

// IsAlternate reports whether p speaks in a voice other than the default one.
func (p Persona) IsAlternate() bool { return Parse(string(p)) != Default }

func (p Persona) String() string { return string(p) }
