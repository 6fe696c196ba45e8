// Package job runs the weather pipeline as declarative jobs. A job is a flow
// of tasklet steps connected by transitions on exit status, loaded from an
// embedded YAML definition with one job per document.
package job

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/tigerroll/weatherdw/internal/support/exception"
	"github.com/tigerroll/weatherdw/internal/support/logger"
)

const moduleName = "job"

// DefinitionBytes holds the raw job definition YAML.
type DefinitionBytes []byte

// Definition is one job.
type Definition struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	// Properties are passed to every step; step properties override them.
	Properties map[string]string `yaml:"properties,omitempty"`
	Flow       Flow              `yaml:"flow"`
}

// Flow is the step graph of a job.
type Flow struct {
	StartElement string          `yaml:"start-element"`
	Elements     map[string]Step `yaml:"elements"`
}

// Step is one tasklet step. An empty ID takes the element key.
type Step struct {
	ID          string       `yaml:"id"`
	Description string       `yaml:"description,omitempty"`
	Tasklet     ComponentRef `yaml:"tasklet"`
	Retry       *RetryPolicy `yaml:"retry,omitempty"`
	Transitions []Transition `yaml:"transitions,omitempty"`
}

// ComponentRef names a registered tasklet builder.
type ComponentRef struct {
	Ref        string            `yaml:"ref"`
	Properties map[string]string `yaml:"properties,omitempty"`
}

// Transition selects what follows a step whose exit status matches On ("*"
// matches any status). Exactly one of To, End, Fail and Stop is set.
type Transition struct {
	On   string `yaml:"on"`
	To   string `yaml:"to,omitempty"`
	End  bool   `yaml:"end,omitempty"`
	Fail bool   `yaml:"fail,omitempty"`
	Stop bool   `yaml:"stop,omitempty"`
}

// transitionFor returns the first transition matching status; exact matches
// are preferred over the wildcard.
func (s Step) transitionFor(status ExitStatus) (Transition, bool) {
	for _, t := range s.Transitions {
		if t.On == string(status) {
			return t, true
		}
	}
	for _, t := range s.Transitions {
		if t.On == "*" {
			return t, true
		}
	}
	return Transition{}, false
}

// Definitions indexes jobs by ID.
type Definitions map[string]Definition

// Names returns the job IDs in lexical order.
func (d Definitions) Names() []string {
	names := make([]string, 0, len(d))
	for id := range d {
		names = append(names, id)
	}
	sort.Strings(names)
	return names
}

// LoadDefinitions parses a YAML stream of job documents and validates every
// job. All problems are configuration errors.
func LoadDefinitions(data DefinitionBytes) (Definitions, error) {
	defs := make(Definitions)
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var def Definition
		err := dec.Decode(&def)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, exception.New(moduleName, exception.KindConfig, "failed to parse job definition", err)
		}
		if def.ID == "" && len(def.Flow.Elements) == 0 {
			continue
		}
		if err := def.normalize(); err != nil {
			return nil, err
		}
		if _, dup := defs[def.ID]; dup {
			return nil, exception.Newf(moduleName, exception.KindConfig, "job '%s' is defined twice", def.ID)
		}
		defs[def.ID] = def
		logger.Debugf("Loaded job '%s' with %d steps.", def.ID, len(def.Flow.Elements))
	}
	if len(defs) == 0 {
		return nil, exception.New(moduleName, exception.KindConfig, "job definition contains no jobs", nil)
	}
	logger.Infof("Job definitions loaded: %v", defs.Names())
	return defs, nil
}

func (d *Definition) normalize() error {
	if d.ID == "" {
		return exception.New(moduleName, exception.KindConfig, "job without 'id'", nil)
	}
	if d.Name == "" {
		d.Name = d.ID
	}
	if d.Flow.StartElement == "" {
		return exception.Newf(moduleName, exception.KindConfig, "job '%s' has no 'start-element'", d.ID)
	}
	if len(d.Flow.Elements) == 0 {
		return exception.Newf(moduleName, exception.KindConfig, "job '%s' has no elements", d.ID)
	}
	if _, ok := d.Flow.Elements[d.Flow.StartElement]; !ok {
		return exception.Newf(moduleName, exception.KindConfig, "job '%s' starts at unknown element '%s'", d.ID, d.Flow.StartElement)
	}

	for key, step := range d.Flow.Elements {
		if step.ID == "" {
			step.ID = key
		}
		if step.ID != key {
			return exception.Newf(moduleName, exception.KindConfig, "job '%s': element '%s' declares id '%s'", d.ID, key, step.ID)
		}
		if step.Tasklet.Ref == "" {
			return exception.Newf(moduleName, exception.KindConfig, "job '%s': step '%s' has no tasklet ref", d.ID, key)
		}
		for _, t := range step.Transitions {
			if err := validateTransition(d, key, t); err != nil {
				return err
			}
		}
		if step.Retry != nil {
			if err := step.Retry.validate(); err != nil {
				return exception.New(moduleName, exception.KindConfig, fmt.Sprintf("job '%s': step '%s'", d.ID, key), err)
			}
		}
		d.Flow.Elements[key] = step
	}
	return nil
}

func validateTransition(d *Definition, from string, t Transition) error {
	if t.On == "" {
		return exception.Newf(moduleName, exception.KindConfig, "job '%s': transition from '%s' has no 'on'", d.ID, from)
	}
	targets := 0
	for _, set := range []bool{t.To != "", t.End, t.Fail, t.Stop} {
		if set {
			targets++
		}
	}
	if targets != 1 {
		return exception.Newf(moduleName, exception.KindConfig,
			"job '%s': transition from '%s' on '%s' must set exactly one of to, end, fail, stop", d.ID, from, t.On)
	}
	if t.To != "" {
		if _, ok := d.Flow.Elements[t.To]; !ok {
			return exception.Newf(moduleName, exception.KindConfig,
				"job '%s': transition from '%s' targets unknown element '%s'", d.ID, from, t.To)
		}
	}
	return nil
}
