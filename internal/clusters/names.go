package clusters

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultNames are the semantic names of the five clusters the analysis
// stage produces.
var DefaultNames = map[int]string{
	0: "Enterprise-Ready Solutions",
	1: "Data-Driven Services",
	2: "Financial Tech Innovators",
	3: "Visual Recognition Specialists",
	4: "Creative AI Tools",
}

// namesFile is the YAML layout of CLUSTER_NAMES_FILE:
//
//	names:
//	  0: Enterprise-Ready Solutions
//	  1: Data-Driven Services
type namesFile struct {
	Names map[int]string `yaml:"names"`
}

// LoadNames reads cluster names from a YAML file. An empty path returns a
// copy of DefaultNames.
func LoadNames(path string) (map[int]string, error) {
	if strings.TrimSpace(path) == "" {
		out := make(map[int]string, len(DefaultNames))
		for id, name := range DefaultNames {
			out[id] = name
		}
		return out, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cluster names: %w", err)
	}

	var f namesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse cluster names %s: %w", path, err)
	}
	if len(f.Names) == 0 {
		return nil, fmt.Errorf("cluster names %s: no names defined", path)
	}
	for id, name := range f.Names {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("cluster names %s: empty name for cluster %d", path, id)
		}
		f.Names[id] = strings.TrimSpace(name)
	}
	return f.Names, nil
}
