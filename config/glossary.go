package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ZaguanLabs/nmtflow"
	"gopkg.in/yaml.v3"
)

// glossaryFile is the on-disk glossary format:
//
//	terms:
//	  Acme: Acme
//	  Nube Pro: Cloud Pro
type glossaryFile struct {
	Terms map[string]string `yaml:"terms"`
}

// LoadGlossary reads a YAML glossary file.
func LoadGlossary(path string) (nmtflow.Glossary, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from configuration
	if err != nil {
		return nil, &nmtflow.ConfigError{Message: "failed to read glossary", Cause: err}
	}
	return ParseGlossary(data)
}

// ParseGlossary parses glossary YAML. Terms must be non-blank; an empty
// rendering keeps the source term unchanged.
func ParseGlossary(data []byte) (nmtflow.Glossary, error) {
	var f glossaryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &nmtflow.ConfigError{Message: "invalid glossary YAML", Cause: err}
	}

	g := make(nmtflow.Glossary, len(f.Terms))
	for term, rendering := range f.Terms {
		term = strings.TrimSpace(term)
		if term == "" {
			return nil, &nmtflow.ConfigError{Message: "glossary contains a blank term"}
		}
		if _, dup := g[term]; dup {
			return nil, &nmtflow.ConfigError{Message: fmt.Sprintf("glossary term %q defined twice", term)}
		}
		if strings.TrimSpace(rendering) == "" {
			rendering = term
		}
		g[term] = rendering
	}
	return g, nil
}
