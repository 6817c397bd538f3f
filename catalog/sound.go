// Package catalog supplies the selectable background sounds: a remote
// manifest, a local cache with a fixed TTL, and a bundled fallback list.
package catalog

import (
	"github.com/codewandler/lullaby-go/device"
)

// Sound is one selectable background sound.
type Sound struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Icon   string        `json:"icon"`
	Source device.Source `json:"source"`
}

// Bundled is the list shipped with the application.
var Bundled = []Sound{
	{ID: "rain", Name: "Gentle Rain", Icon: "🌧️", Source: device.Asset("rain.mp3")},
	{ID: "ocean", Name: "Ocean Waves", Icon: "🌊", Source: device.Asset("ocean.mp3")},
	{ID: "sleep_tune", Name: "Sleep Tune", Icon: "🌙", Source: device.Asset("sleep_tune.mp3")},
	{ID: "music-box", Name: "Music Box", Icon: "🎁", Source: device.Asset("music-box.mp3")},
	{ID: "kitten-snore", Name: "Kitten Snore", Icon: "🐱", Source: device.Asset("kitten-snore.mp3")},
	{ID: "piano", Name: "Soft Piano", Icon: "🎹", Source: device.Asset("piano.mp3")},
	{ID: "flute", Name: "Gentle Flute", Icon: "🪈", Source: device.Asset("flute.mp3")},
	{ID: "guitar", Name: "Acoustic Guitar", Icon: "🎸", Source: device.Asset("guitar.mp3")},
	{ID: "calm-guitar", Name: "Calm Guitar", Icon: "🎸", Source: device.Asset("calm-guitar.mp3")},
	{ID: "violin", Name: "Soft Violin", Icon: "🎻", Source: device.Asset("violin.mp3")},
	{ID: "baby_sleep_new", Name: "Baby Sleep", Icon: "👶", Source: device.Asset("baby_sleep_new.mp3")},
	{ID: "sitar", Name: "Sitar Melody", Icon: "🪕", Source: device.Asset("sitar.mp3")},
	{ID: "touching", Name: "Touching Tune", Icon: "✨", Source: device.Asset("touching.mp3")},
}

// Find looks a sound up by id.
func Find(sounds []Sound, id string) (Sound, bool) {
	if id == "" {
		return Sound{}, false
	}
	for _, s := range sounds {
		if s.ID == id {
			return s, true
		}
	}
	return Sound{}, false
}

type manifest struct {
	Version int             `json:"version"`
	Sounds  []manifestSound `json:"sounds"`
}

type manifestSound struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
	URL  string `json:"url"`
}

type cacheEntry struct {
	Sounds      []Sound `json:"sounds"`
	TimestampMs int64   `json:"timestampMs"`
}
