package pricing

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadRules reads a JSON rule file: an array of {name, expression}
// objects. An empty path yields an empty rule set.
func LoadRules(path string) ([]Rule, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse rule file %s: %w", path, err)
	}
	return rules, nil
}
