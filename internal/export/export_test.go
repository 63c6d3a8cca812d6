package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/intbuddy/internal/types"
)

func sampleData() *types.InterviewData {
	return &types.InterviewData{
		Experiences: []types.Experience{
			{Journey: "Solved 300 problems.", Rounds: []types.Round{{Number: 1, Text: "Two graph\nquestions."}}},
			{Body: "Only an HR call."},
		},
		Rounds: []types.RoundSummary{{Number: 1, Entries: []string{"Two graph\nquestions."}}},
		Tips:   []string{"Always explain the brute force first."},
		Topics: []types.TopicCount{{Topic: "Graphs", Mentions: 1}},
	}
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	records := []types.InterviewRecord{
		{Company: "Microsoft", Role: "SDE - 2", Description: "Line one,\n\"quoted\" line two"},
		{Company: "Amazon", Role: "SDE - 1", Description: "short"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records))
	assert.True(t, strings.HasPrefix(buf.String(), "company,role,description\n"))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "company,role,description\n", buf.String())
}

func TestReadCSV_BadHeader(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b,c\n1,2,3\n"))
	assert.ErrorContains(t, err, "unexpected CSV header")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleData()))

	var got types.InterviewData
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Len(t, got.Experiences, 2)
	assert.Contains(t, buf.String(), "\n  \"experiences\"")
}

func TestMarkdown(t *testing.T) {
	md := Markdown("Microsoft SDE - 2", sampleData())

	assert.True(t, strings.HasPrefix(md, "# Microsoft SDE - 2\n"))
	assert.Contains(t, md, "2 interview experiences.")
	assert.Contains(t, md, "### Round 1\n\n- Two graph questions.\n")
	assert.Contains(t, md, "| Graphs | 1 |")
	assert.Contains(t, md, "- Always explain the brute force first.")
	assert.Contains(t, md, "**Preparation journey.** Solved 300 problems.")
	assert.Contains(t, md, "Only an HR call.")
}

func TestMarkdown_NoData(t *testing.T) {
	assert.Contains(t, Markdown("Empty", nil), "No interview experiences")
	assert.Contains(t, Markdown("Empty", &types.InterviewData{}), "No interview experiences")
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMarkdown(&buf, "T", sampleData()))
	assert.Equal(t, Markdown("T", sampleData()), buf.String())
}
