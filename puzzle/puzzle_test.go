package puzzle

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridEqual(t *testing.T) {
	a := Grid{{1, 2}, {3, 4}}

	assert.True(t, a.Equal(Grid{{1, 2}, {3, 4}}))
	assert.False(t, a.Equal(Grid{{1, 2}, {3, 5}}))
	assert.False(t, a.Equal(Grid{{1, 2}}))
	assert.False(t, a.Equal(Grid{{1, 2}, {3, 4, 5}}))
	assert.True(t, Grid(nil).Equal(Grid{}))
}

func TestLoadProblemSet(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "sets/sample.json", []byte(`{
		"train": [{"input": [[1]], "output": [[2]]}],
		"test": [{"input": [[3]], "output": [[4]]}]
	}`), 0644))

	ps, err := LoadProblemSet(fsys, "sets/sample.json")
	require.NoError(t, err)
	require.Len(t, ps.Train, 1)
	require.Len(t, ps.Test, 1)
	assert.Equal(t, Grid{{1}}, ps.Train[0].Input)
	assert.Equal(t, Grid{{4}}, ps.Test[0].Output)

	_, err = LoadProblemSet(fsys, "sets/absent.json")
	require.Error(t, err)

	require.NoError(t, afero.WriteFile(fsys, "sets/broken.json", []byte("not json"), 0644))
	_, err = LoadProblemSet(fsys, "sets/broken.json")
	require.Error(t, err)
}

func TestProblemSetFrom(t *testing.T) {
	typed := &ProblemSet{Train: []Example{{Input: Grid{{1}}, Output: Grid{{2}}}}}
	ps, err := ProblemSetFrom(typed)
	require.NoError(t, err)
	assert.Same(t, typed, ps)

	// Generic maps arrive from YAML initial_context blocks.
	generic := map[string]interface{}{
		"train": []interface{}{
			map[string]interface{}{
				"input":  []interface{}{[]interface{}{1, 2}},
				"output": []interface{}{[]interface{}{2, 1}},
			},
		},
		"test": []interface{}{
			map[string]interface{}{"input": []interface{}{[]interface{}{3}}},
		},
	}
	ps, err = ProblemSetFrom(generic)
	require.NoError(t, err)
	assert.Equal(t, Grid{{1, 2}}, ps.Train[0].Input)
	assert.Equal(t, Grid{{3}}, ps.Test[0].Input)
	assert.Nil(t, ps.Test[0].Output)

	_, err = ProblemSetFrom(nil)
	require.Error(t, err)

	_, err = ProblemSetFrom("not a problem set")
	require.Error(t, err)
}

func TestAttemptsFrom(t *testing.T) {
	attempts, err := AttemptsFrom([]interface{}{
		map[string]interface{}{
			"test_input":  []interface{}{[]interface{}{1}},
			"output_grid": []interface{}{[]interface{}{2}},
			"explanation": "swap",
		},
	})
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, Grid{{2}}, attempts[0].OutputGrid)
	assert.Equal(t, "swap", attempts[0].Explanation)

	_, err = AttemptsFrom(nil)
	require.Error(t, err)
}

func TestParseRuleSet(t *testing.T) {
	rs, err := ParseRuleSet(`{"rules": ["mirror rows"], "explanation": "symmetry"}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"mirror rows"}, rs.Rules)
	assert.Equal(t, "symmetry", rs.Explanation)

	_, err = ParseRuleSet("no json here")
	require.Error(t, err)
}

func TestParseRuleSetFenced(t *testing.T) {
	fenced := "```json\n{\"rules\": [\"rotate\"], \"explanation\": \"quarter turn\"}\n```"
	rs, err := ParseRuleSet(fenced)
	require.NoError(t, err)
	assert.Equal(t, []string{"rotate"}, rs.Rules)

	bare := "```\n{\"rules\": [\"rotate\"], \"explanation\": \"\"}\n```"
	rs, err = ParseRuleSet(bare)
	require.NoError(t, err)
	assert.Equal(t, []string{"rotate"}, rs.Rules)
}

func TestParseAttempt(t *testing.T) {
	attempt, err := ParseAttempt(`{"output_grid": [[5, 6]], "explanation": "shift"}`)
	require.NoError(t, err)
	assert.Equal(t, Grid{{5, 6}}, attempt.OutputGrid)
	assert.Equal(t, "shift", attempt.Explanation)
	assert.Nil(t, attempt.TestInput)
}

func TestReportScore(t *testing.T) {
	report := &Report{Correct: 3, Total: 4}
	assert.InDelta(t, 0.75, report.Score(), 0.001)

	empty := &Report{}
	assert.Zero(t, empty.Score())
}

func TestVisualizePairVertical(t *testing.T) {
	input := Grid{{0, 1}, {2, 3}}
	output := Grid{{3, 2}, {1, 0}}

	text, err := VisualizePair(input, output, RepresentationVertical)
	require.NoError(t, err)
	assert.Equal(t, "Input:\n0 1\n2 3\n\nOutput:\n3 2\n1 0\n", text)
}

func TestVisualizePairInputOnly(t *testing.T) {
	text, err := VisualizePair(Grid{{7}}, nil, RepresentationVertical)
	require.NoError(t, err)
	assert.Equal(t, "Input:\n7\n", text)
	assert.NotContains(t, text, "Output:")
}

func TestVisualizePairNumbered(t *testing.T) {
	text, err := VisualizePair(Grid{{0, 1}, {2, 3}}, Grid{{9}}, RepresentationVerticalNumbered)
	require.NoError(t, err)
	assert.Equal(t, "Input:\n1: 0 1\n2: 2 3\n\nOutput:\n1: 9\n", text)
}

func TestVisualizePairUnknownRepresentation(t *testing.T) {
	_, err := VisualizePair(Grid{{1}}, nil, "diagonal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown representation "diagonal"`)
}
