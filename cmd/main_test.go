package main

import (
	"bufio"
	"bytes"
	"os"
	"path"
	"testing"

	_ "embed"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knights-analytics/spanf1/spans"
)

//go:embed testData/score.jsonl
var scoreData []byte

//go:embed testData/extract.jsonl
var extractData []byte

// runCli writes data into a fresh folder, runs the app on it and returns the output lines.
func runCli(t *testing.T, data []byte, args ...string) ([][]byte, error) {
	t.Helper()
	testDataDir := t.TempDir()
	outputDir := t.TempDir()
	recurseDir := path.Join(testDataDir, "cliRecurseTest")
	require.NoError(t, os.MkdirAll(recurseDir, os.ModePerm))
	require.NoError(t, os.WriteFile(path.Join(recurseDir, "test-0.jsonl"), data, os.ModePerm))
	// files without the .jsonl extension are skipped
	require.NoError(t, os.WriteFile(path.Join(testDataDir, "notes.txt"), []byte("not json"), os.ModePerm))

	baseArgs := append([]string{os.Args[0]}, args[0], "--input="+testDataDir, "--output="+outputDir)
	runErr := newApp().Run(append(baseArgs, args[1:]...))

	result, err := os.ReadFile(path.Join(outputDir, "result-0.jsonl"))
	if os.IsNotExist(err) {
		return nil, runErr
	}
	require.NoError(t, err)
	var lines [][]byte
	scanner := bufio.NewScanner(bytes.NewReader(result))
	for scanner.Scan() {
		lines = append(lines, append([]byte(nil), scanner.Bytes()...))
	}
	return lines, runErr
}

func TestScoreCli(t *testing.T) {
	lines, err := runCli(t, scoreData, "score")
	require.NoError(t, err)
	require.Len(t, lines, 3)

	var first, second scoreOutput
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, scoreOutput{ID: "a", TruePositives: 1, FalsePositives: 1}, first)
	assert.Equal(t, scoreOutput{ID: "b", TruePositives: 2}, second)

	var summary summaryOutput
	require.NoError(t, json.Unmarshal(lines[2], &summary))
	assert.True(t, summary.Summary)
	assert.Equal(t, uint64(2), summary.Batches)
	assert.Equal(t, int64(3), summary.TruePositives)
	assert.Equal(t, int64(1), summary.FalsePositives)
	assert.Equal(t, int64(0), summary.FalseNegatives)
	assert.InDelta(t, 0.75, summary.Precision, 1e-9)
	assert.InDelta(t, 1.0, summary.Recall, 1e-9)
	assert.InDelta(t, 6.0/7.0, summary.F1, 1e-9)
}

func TestScoreCliFlatStrategies(t *testing.T) {
	// masked flat decoding leaves the counts unchanged
	lines, err := runCli(t, scoreData, "score", "--flat")
	require.NoError(t, err)
	require.Len(t, lines, 3)
	var summary summaryOutput
	require.NoError(t, json.Unmarshal(lines[2], &summary))
	assert.Equal(t, int64(3), summary.TruePositives)
	assert.Equal(t, int64(1), summary.FalsePositives)

	// extraction drops the span nested at the end of (0, 2)
	lines, err = runCli(t, scoreData, "score", "--flatStrategy=extract")
	require.NoError(t, err)
	require.Len(t, lines, 3)
	require.NoError(t, json.Unmarshal(lines[2], &summary))
	assert.Equal(t, int64(3), summary.TruePositives)
	assert.Equal(t, int64(0), summary.FalsePositives)
	assert.InDelta(t, 1.0, summary.F1, 1e-9)

	_, err = runCli(t, scoreData, "score", "--flatStrategy=greedy")
	assert.Error(t, err)
}

func TestScoreCliBadRecord(t *testing.T) {
	data := append([]byte(nil), scoreData...)
	data = append(data, []byte(`{"id": "c", "label_mask": [[1]], "start_logits": [[[0, 1], [0, 1]]]}`+"\n")...)
	data = append(data, []byte(`{"id": "empty", "start_logits": [[]], "end_logits": [[]], "match_logits": [[]], "label_mask": [[]], "match_labels": [[]]}`+"\n")...)
	lines, err := runCli(t, data, "score")
	assert.ErrorContains(t, err, "2 input lines could not be processed")
	// the good records and the summary are still written
	require.Len(t, lines, 3)
	var summary summaryOutput
	require.NoError(t, json.Unmarshal(lines[2], &summary))
	assert.Equal(t, uint64(2), summary.Batches)
}

func TestExtractCli(t *testing.T) {
	lines, err := runCli(t, extractData, "extract", "--tags")
	require.NoError(t, err)
	require.Len(t, lines, 3)

	expected := []extractOutput{
		{ID: "s1", Spans: []spans.Span{{Start: 0, End: 2}, {Start: 2, End: 4}}, Tags: []string{"B-ENT", "E-ENT", "B-ENT", "E-ENT"}},
		{ID: "s2", Spans: []spans.Span{{Start: 0, End: 3}}, Tags: []string{"B-ENT", "M-ENT", "E-ENT"}},
		{ID: "s3", Spans: []spans.Span{{Start: 1, End: 4}}, Tags: []string{"O", "B-ENT", "M-ENT", "E-ENT"}},
	}
	for i, line := range lines {
		var out extractOutput
		require.NoError(t, json.Unmarshal(line, &out))
		assert.Equal(t, expected[i], out)
	}
}

func TestExtractCliTagged(t *testing.T) {
	lines, err := runCli(t, extractData, "extract", "--tagged")
	require.NoError(t, err)
	require.Len(t, lines, 3)
	var out extractOutput
	require.NoError(t, json.Unmarshal(lines[2], &out))
	assert.Equal(t, []spans.Span{{Start: 0, End: 1}, {Start: 1, End: 4}}, out.Spans)
	assert.Nil(t, out.Tags)

	lines, err = runCli(t, extractData, "extract", "--tagged", "--removeOverlap")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(lines[2], &out))
	assert.Equal(t, []spans.Span{{Start: 0, End: 1}, {Start: 1, End: 4}}, out.Spans)
}

func TestScoreCliUnwritableOutput(t *testing.T) {
	inputFile := path.Join(t.TempDir(), "score.jsonl")
	require.NoError(t, os.WriteFile(inputFile, scoreData, os.ModePerm))
	blocker := path.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("file"), os.ModePerm))

	err := newApp().Run([]string{os.Args[0], "score", "--input=" + inputFile, "--output=" + blocker})
	assert.Error(t, err)
}

func TestMissingInput(t *testing.T) {
	err := newApp().Run([]string{os.Args[0], "score", "--input=" + path.Join(t.TempDir(), "missing.jsonl")})
	assert.Error(t, err)
}
