package tts

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadParams reads voice parameters from a YAML file. Fields absent from the
// file keep their zero value except Speed, which defaults to 1 so a params
// file never silences playback rate.
func LoadParams(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("read params file: %w", err)
	}

	var p Params
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Params{}, fmt.Errorf("parse params file %s: %w", path, err)
	}
	if p.Speed == 0 {
		p.Speed = 1
	}
	return p, nil
}
