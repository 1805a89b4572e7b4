package sitepolicy

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Rules is the on-disk host policy file.
type Rules struct {
	Restricted  []RestrictedHost `yaml:"restricted"`
	ScriptHeavy []string         `yaml:"script_heavy"`
}

// RestrictedHost names a sign-in-walled host. Name appears in guidance text
// and defaults to the host.
type RestrictedHost struct {
	Host string `yaml:"host"`
	Name string `yaml:"name"`
}

// LoadRules reads a policy file. The YAML has a top-level "sitepolicy" key.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sitepolicy: read rules %s", path)
	}

	var wrapper struct {
		SitePolicy Rules `yaml:"sitepolicy"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "sitepolicy: parse rules")
	}
	for i, r := range wrapper.SitePolicy.Restricted {
		if normalizeHost(r.Host) == "" {
			return nil, eris.Errorf("sitepolicy: restricted entry %d has no host", i)
		}
	}
	return &wrapper.SitePolicy, nil
}

// Classifier builds a Classifier from the built-in lists, the rules, and any
// extra hosts. Rules win over extras for the same host.
func (r *Rules) Classifier(extraRestricted, extraScriptHeavy []string) *Classifier {
	restricted := namedHosts(extraRestricted)
	scriptHeavy := append([]string(nil), extraScriptHeavy...)
	if r != nil {
		for _, h := range r.Restricted {
			restricted[h.Host] = h.Name
		}
		scriptHeavy = append(scriptHeavy, r.ScriptHeavy...)
	}
	return newClassifier(restricted, scriptHeavy)
}
