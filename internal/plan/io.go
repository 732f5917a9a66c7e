package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WriteFile writes a plan to a YAML file
func WriteFile(p *Plan, path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// ReadFile reads a plan from a YAML file
func ReadFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode plan %s: %w", path, err)
	}
	if p.Version != Version {
		return nil, fmt.Errorf("plan %s: unsupported version %q", path, p.Version)
	}
	p.Settings.Normalize()

	for i := range p.Scenes {
		p.Scenes[i].Index = i
		if p.Scenes[i].Duration <= 0 {
			p.Scenes[i].Duration = SceneDuration.Seconds()
		}
	}

	return &p, nil
}
