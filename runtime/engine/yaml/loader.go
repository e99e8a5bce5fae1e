package yaml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BDNK1/agentflow/runtime"
	goyaml "gopkg.in/yaml.v3"
)

// FlowLoader loads workflow definitions from YAML or JSON files.
type FlowLoader struct{}

func NewFlowLoader() *FlowLoader {
	return &FlowLoader{}
}

func (l *FlowLoader) Extensions() []string {
	return []string{"*.yaml", "*.yml", "*.json"}
}

// Load decodes a definition. A workflow without an id takes the file name
// (without extension) as its id.
func (l *FlowLoader) Load(filePath string) (runtime.Workflow, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return runtime.Workflow{}, fmt.Errorf("error reading workflow file: %w", err)
	}

	wf, err := Parse(content, filepath.Ext(filePath))
	if err != nil {
		return runtime.Workflow{}, err
	}

	if wf.ID == "" {
		wf.ID = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}
	return wf, nil
}

// Parse decodes a definition from memory; ext selects JSON (".json") or YAML.
func Parse(content []byte, ext string) (runtime.Workflow, error) {
	var wf runtime.Workflow
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(content, &wf); err != nil {
			return runtime.Workflow{}, fmt.Errorf("error unmarshalling JSON: %w", err)
		}
		return wf, nil
	}

	if err := goyaml.Unmarshal(content, &wf); err != nil {
		return runtime.Workflow{}, fmt.Errorf("error unmarshalling YAML: %w", err)
	}
	return wf, nil
}
