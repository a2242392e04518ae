// Package registry holds the immutable intake question bank. The bank is
// read from its YAML definition once at process start, validated, and
// shared read-only by every engine component.
package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"intake/models"
)

// Registry is the validated, in-memory question bank. It is built once and
// never mutated afterwards, so it is safe for concurrent readers.
type Registry struct {
	questions   []models.Question
	byID        map[string]*models.Question
	byModule    map[string][]models.Question
	modules     []models.ModuleSpec
	moduleByKey map[string]*models.ModuleSpec
}

// Load reads the bank file and builds the registry. Any integrity defect
// (duplicate id, unknown module, dangling depends-on reference) is a fatal
// configuration error and fails construction.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read question bank file: %w", err)
	}

	var bank models.QuestionBank
	if err := yaml.Unmarshal(data, &bank); err != nil {
		return nil, fmt.Errorf("failed to unmarshal question bank YAML: %w", err)
	}

	return Build(bank)
}

// Build validates a parsed bank and assembles the registry. Split from Load
// so tests can construct banks directly.
func Build(bank models.QuestionBank) (*Registry, error) {
	if len(bank.Modules) == 0 {
		return nil, fmt.Errorf("question bank defines no modules")
	}
	if len(bank.Questions) == 0 {
		return nil, fmt.Errorf("question bank defines no questions")
	}

	r := &Registry{
		questions:   make([]models.Question, len(bank.Questions)),
		byID:        make(map[string]*models.Question, len(bank.Questions)),
		byModule:    make(map[string][]models.Question),
		modules:     make([]models.ModuleSpec, len(bank.Modules)),
		moduleByKey: make(map[string]*models.ModuleSpec, len(bank.Modules)),
	}
	copy(r.questions, bank.Questions)
	copy(r.modules, bank.Modules)

	for i := range r.modules {
		m := &r.modules[i]
		if m.Name == "" {
			return nil, fmt.Errorf("module at index %d has no name", i)
		}
		if _, dup := r.moduleByKey[m.Name]; dup {
			return nil, fmt.Errorf("duplicate module %q in question bank", m.Name)
		}
		if m.MinQuestions < 0 || m.MaxQuestions < m.MinQuestions {
			return nil, fmt.Errorf("module %q has invalid question bounds (min=%d, max=%d)", m.Name, m.MinQuestions, m.MaxQuestions)
		}
		r.moduleByKey[m.Name] = m
	}

	for i := range r.questions {
		q := &r.questions[i]
		if q.ID == "" {
			return nil, fmt.Errorf("question at index %d has no id", i)
		}
		if _, dup := r.byID[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %q in question bank", q.ID)
		}
		if _, ok := r.moduleByKey[q.Module]; !ok {
			return nil, fmt.Errorf("question %q references unknown module %q", q.ID, q.Module)
		}
		r.byID[q.ID] = q
		// Insertion order within a module is the deterministic tie-break
		// order for selection.
		r.byModule[q.Module] = append(r.byModule[q.Module], *q)
	}

	// Validate depends-on references after the id map is complete.
	for i := range r.questions {
		q := &r.questions[i]
		if q.Conditional != nil {
			if _, ok := r.byID[q.Conditional.DependsOn]; !ok {
				return nil, fmt.Errorf("question %q depends on unknown question %q", q.ID, q.Conditional.DependsOn)
			}
		}
	}

	return r, nil
}

// All returns every question in bank order.
func (r *Registry) All() []models.Question {
	return r.questions
}

// ByModule returns the questions of a module in bank order.
func (r *Registry) ByModule(module string) []models.Question {
	return r.byModule[module]
}

// FindByID looks a question up by id.
func (r *Registry) FindByID(id string) (*models.Question, error) {
	q, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("question %q not found in registry", id)
	}
	return q, nil
}

// Modules returns every module spec in the bank's fixed progression order.
func (r *Registry) Modules() []models.ModuleSpec {
	return r.modules
}

// Module returns the spec for a named module.
func (r *Registry) Module(name string) (*models.ModuleSpec, error) {
	m, ok := r.moduleByKey[name]
	if !ok {
		return nil, fmt.Errorf("module %q not found in registry", name)
	}
	return m, nil
}

// RequiredQuestions returns the module's always-asked questions.
func (r *Registry) RequiredQuestions(module string) []models.Question {
	var out []models.Question
	for _, q := range r.byModule[module] {
		if q.Required {
			out = append(out, q)
		}
	}
	return out
}

// ConditionalQuestions returns the module's activation-gated questions.
func (r *Registry) ConditionalQuestions(module string) []models.Question {
	var out []models.Question
	for _, q := range r.byModule[module] {
		if !q.Required {
			out = append(out, q)
		}
	}
	return out
}
