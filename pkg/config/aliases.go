package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AliasFile is the on-disk shape of IMPORT_ALIASES_FILE:
//
//	aliases:
//	  budget_code: ["kalem kodu", "hesap kodu"]
//	  amount: ["tutar tl"]
type AliasFile struct {
	Aliases map[string][]string `yaml:"aliases"`
}

// LoadAliases reads extra column aliases keyed by canonical field name.
// An empty path returns nil without error.
func LoadAliases(path string) (map[string][]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read aliases file: %w", err)
	}

	var file AliasFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse aliases file %s: %w", path, err)
	}

	out := make(map[string][]string, len(file.Aliases))
	for field, aliases := range file.Aliases {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		for _, a := range aliases {
			if a = strings.TrimSpace(a); a != "" {
				out[field] = append(out[field], a)
			}
		}
	}
	return out, nil
}
