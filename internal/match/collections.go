package match

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed config/collections.yaml
var collectionsYAML embed.FS

// CollectionMap is the immutable funding-type -> source-collection lookup.
// Unknown funding types resolve to nothing.
type CollectionMap struct {
	FundingTypes map[string][]string `yaml:"funding_types"`
}

// LoadCollectionMap reads the embedded collections.yaml. The path parameter
// is a filesystem fallback for local development and may be empty.
func LoadCollectionMap(path string) (*CollectionMap, error) {
	data, err := collectionsYAML.ReadFile("config/collections.yaml")
	if err != nil {
		if path == "" {
			return nil, err
		}
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	var cm CollectionMap
	if err := yaml.Unmarshal(data, &cm); err != nil {
		return nil, fmt.Errorf("parsing collection map: %w", err)
	}
	if len(cm.FundingTypes) == 0 {
		return nil, fmt.Errorf("collection map is empty")
	}
	return &cm, nil
}

// Resolve returns the union of collections mapped from the given funding
// types, deduplicated, in request order then configured order. Unknown
// labels contribute nothing.
func (cm *CollectionMap) Resolve(fundingTypes []string) []string {
	seen := make(map[string]bool)
	var collections []string
	for _, ft := range fundingTypes {
		for _, col := range cm.FundingTypes[ft] {
			if seen[col] {
				continue
			}
			seen[col] = true
			collections = append(collections, col)
		}
	}
	return collections
}
