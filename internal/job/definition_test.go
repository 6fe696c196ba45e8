package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/weatherdw/internal/support/exception"
)

const twoJobs = `
id: currentJob
properties:
  kind: current
flow:
  start-element: extract
  elements:
    extract:
      tasklet:
        ref: extractWeather
      retry:
        max-attempts: 3
        initial-interval-millis: 10
        retryable-exceptions: [PipelineError.fetch]
      transitions:
        - on: "*"
          to: load
    load:
      tasklet:
        ref: loadWeather
        properties:
          batch: "5"
---
id: forecastJob
name: Forecast
flow:
  start-element: only
  elements:
    only:
      tasklet:
        ref: noop
`

func TestLoadDefinitions(t *testing.T) {
	defs, err := LoadDefinitions(DefinitionBytes(twoJobs))
	require.NoError(t, err)
	assert.Equal(t, []string{"currentJob", "forecastJob"}, defs.Names())

	current := defs["currentJob"]
	assert.Equal(t, "currentJob", current.Name)
	assert.Equal(t, "current", current.Properties["kind"])
	extract := current.Flow.Elements["extract"]
	assert.Equal(t, "extract", extract.ID)
	require.NotNil(t, extract.Retry)
	assert.Equal(t, 3, extract.Retry.Attempts())
	assert.Equal(t, "5", current.Flow.Elements["load"].Tasklet.Properties["batch"])

	assert.Equal(t, "Forecast", defs["forecastJob"].Name)
}

func TestLoadDefinitions_Invalid(t *testing.T) {
	cases := map[string]string{
		"empty":            ``,
		"no id":            "flow:\n  start-element: a\n  elements:\n    a:\n      tasklet: {ref: x}\n",
		"no start":         "id: j\nflow:\n  elements:\n    a:\n      tasklet: {ref: x}\n",
		"unknown start":    "id: j\nflow:\n  start-element: b\n  elements:\n    a:\n      tasklet: {ref: x}\n",
		"missing ref":      "id: j\nflow:\n  start-element: a\n  elements:\n    a:\n      tasklet: {}\n",
		"unknown target":   "id: j\nflow:\n  start-element: a\n  elements:\n    a:\n      tasklet: {ref: x}\n      transitions:\n        - {on: '*', to: z}\n",
		"ambiguous target": "id: j\nflow:\n  start-element: a\n  elements:\n    a:\n      tasklet: {ref: x}\n      transitions:\n        - {on: '*', end: true, fail: true}\n",
		"bad retry":        "id: j\nflow:\n  start-element: a\n  elements:\n    a:\n      tasklet: {ref: x}\n      retry: {max-attempts: 0}\n",
		"duplicate":        "id: j\nflow:\n  start-element: a\n  elements:\n    a:\n      tasklet: {ref: x}\n---\nid: j\nflow:\n  start-element: a\n  elements:\n    a:\n      tasklet: {ref: x}\n",
		"malformed":        "id: [j\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadDefinitions(DefinitionBytes(doc))
			require.Error(t, err)
			assert.True(t, exception.IsKind(err, exception.KindConfig), err.Error())
		})
	}
}

func TestStep_TransitionFor(t *testing.T) {
	s := Step{Transitions: []Transition{
		{On: "*", To: "report"},
		{On: string(ExitFailed), Fail: true},
	}}
	tr, ok := s.transitionFor(ExitFailed)
	require.True(t, ok)
	assert.True(t, tr.Fail)

	tr, ok = s.transitionFor(ExitCompletedWithFailures)
	require.True(t, ok)
	assert.Equal(t, "report", tr.To)

	_, ok = Step{}.transitionFor(ExitCompleted)
	assert.False(t, ok)
}
