package config

import (
	"fmt"
	"sort"
	"time"
)

// Presets groups named overrides by the config section they touch.
var Presets = map[string]map[string]*Config{
	"playback": {
		"slow":   {Playback: PlaybackConfig{Speed: 5}},
		"normal": {Playback: PlaybackConfig{Speed: 30}},
		"fast":   {Playback: PlaybackConfig{Speed: 60}},
	},
	"export": {
		"default": {Export: ExportConfig{
			StepBudget: 2 * time.Second, BudgetFrames: 60, FinalHold: 3 * time.Second, Workers: 2,
		}},
		"smooth": {Export: ExportConfig{
			StepBudget: 4 * time.Second, BudgetFrames: 60, FinalHold: 5 * time.Second, Workers: 2, Dither: true,
		}},
		"quick": {Export: ExportConfig{
			StepBudget: time.Second, BudgetFrames: 60, FinalHold: time.Second, Workers: 4,
		}},
	},
}

func GetPreset(group, preset string) *Config {
	groupPresets, ok := Presets[group]
	if !ok {
		return nil
	}
	cfg, ok := groupPresets[preset]
	if !ok {
		return nil
	}
	return cfg
}

func ListPresets(group string) []string {
	groupPresets, ok := Presets[group]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(groupPresets))
	for name := range groupPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyPreset copies the section a preset belongs to into c.
func (c *Config) ApplyPreset(group, preset string) error {
	p := GetPreset(group, preset)
	if p == nil {
		return fmt.Errorf("config: unknown preset %s/%s", group, preset)
	}
	switch group {
	case "playback":
		c.Playback = p.Playback
	case "export":
		c.Export = p.Export
	}
	return nil
}
