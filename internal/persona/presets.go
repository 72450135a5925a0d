package persona

import "gopkg.in/yaml.v3"

// Config is the on-disk shape of the persona/skill configuration: presets
// and skills are data, not hardcoded Go, so operators can add a persona or
// a skill trigger without a rebuild.
type Config struct {
	Primary             string   `yaml:"primary"`
	DefaultSystemPrompt string   `yaml:"default_system_prompt"`
	Presets             []Preset `yaml:"presets"`
	Skills              []Skill  `yaml:"skills"`
}

// LoadConfig decodes raw YAML into a Config.
func LoadConfig(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
