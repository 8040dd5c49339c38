// yaml.go — YAML output formatter.
// Produces human-diffable YAML output for piping into config-style tooling.
package output

import (
	"gopkg.in/yaml.v3"
)

// YAMLFormatter produces YAML output.
type YAMLFormatter struct{}

// Format writes a YAML representation of the result.
func (f *YAMLFormatter) Format(w Writer, result *Result) error {
	out := map[string]any{
		"success": result.Success,
		"tool":    result.Tool,
		"action":  result.Action,
	}

	if result.Error != "" {
		out["error"] = result.Error
	}

	for k, v := range result.Data {
		out[k] = v
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return err
	}

	_, err = w.Write(data)
	return err
}
