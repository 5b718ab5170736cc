package workflow

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// Definition is the on-disk YAML form of a workflow.
type Definition struct {
	// Name is the workflow name.
	Name string `yaml:"name"`
	// Steps lists the step definitions.
	Steps []StepDefinition `yaml:"steps"`
}

// StepDefinition is one step in a YAML workflow file.
type StepDefinition struct {
	ID              string                       `yaml:"id"`
	Name            string                       `yaml:"name"`
	Capability      string                       `yaml:"capability"`
	AgentClass      string                       `yaml:"agent_class"`
	Priority        string                       `yaml:"priority"`
	Params          map[string]any               `yaml:"params"`
	DependsOn       []string                     `yaml:"depends_on"`
	AllowFailure    bool                         `yaml:"allow_failure"`
	RequireApproval bool                         `yaml:"require_approval"`
	MaxRetries      int                          `yaml:"max_retries"`
	Timeout         duration                     `yaml:"timeout"`
	Resources       []models.ResourceRequirement `yaml:"resources"`
}

// duration parses Go duration strings ("30s", "5m") from YAML.
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = duration(parsed)
	return nil
}

// LoadDefinition parses a workflow YAML file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}
	return ParseDefinition(data)
}

// ParseDefinition parses YAML workflow bytes.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse workflow yaml: %w", err)
	}
	if def.Name == "" {
		return nil, fmt.Errorf("workflow definition has no name")
	}
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("workflow %q has no steps", def.Name)
	}
	for i, step := range def.Steps {
		if step.ID == "" {
			return nil, fmt.Errorf("workflow %q step %d has no id", def.Name, i)
		}
		if step.Capability == "" {
			return nil, fmt.Errorf("workflow %q step %q has no capability", def.Name, step.ID)
		}
	}
	return &def, nil
}

// ToSteps converts the definition into workflow step models.
func (d *Definition) ToSteps() []*models.WorkflowStep {
	steps := make([]*models.WorkflowStep, 0, len(d.Steps))
	for _, sd := range d.Steps {
		name := sd.Name
		if name == "" {
			name = sd.ID
		}
		steps = append(steps, &models.WorkflowStep{
			ID:              sd.ID,
			Name:            name,
			Capability:      sd.Capability,
			AgentClass:      sd.AgentClass,
			Priority:        models.ParsePriority(sd.Priority),
			Params:          sd.Params,
			Dependencies:    sd.DependsOn,
			AllowFailure:    sd.AllowFailure,
			RequireApproval: sd.RequireApproval,
			MaxRetries:      sd.MaxRetries,
			Timeout:         time.Duration(sd.Timeout),
			Resources:       sd.Resources,
		})
	}
	return steps
}

// CreateFromFile loads a YAML definition and registers it as a workflow.
func (e *Engine) CreateFromFile(path string) (*models.Workflow, error) {
	def, err := LoadDefinition(path)
	if err != nil {
		return nil, err
	}
	return e.CreateWorkflow(def.Name, def.ToSteps())
}
