package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/intbuddy/internal/types"
)

// DefaultChunkSize is the maximum chunk length in characters.
const DefaultChunkSize = 1000

// minChunkSize keeps room for content after a section header.
const minChunkSize = 200

// chunkNamespace scopes deterministic chunk ids.
var chunkNamespace = uuid.MustParse("6f1d8a52-3b7e-4c2a-9d4f-8e0b1c2d3e4f")

type unit struct {
	section string
	header  string
	text    string
}

// Chunks splits data into retrieval chunks of at most maxLen characters.
//
// Each journey, round and unsectioned body is one unit and stays whole when it
// fits; longer units are packed sentence by sentence, and only a single
// sentence longer than the budget is cut mid-sentence. An overview, a topics
// chunk and tip chunks follow the experiences. Output order is deterministic.
func Chunks(data *types.InterviewData, maxLen int) []types.Chunk {
	if data == nil {
		return nil
	}
	if maxLen <= 0 {
		maxLen = DefaultChunkSize
	}
	maxLen = max(maxLen, minChunkSize)

	var units []unit
	if overview := overviewText(data); overview != "" {
		units = append(units, unit{section: "overview", header: "Interview overview", text: overview})
	}
	for i, exp := range data.Experiences {
		label := fmt.Sprintf("Experience %d", i+1)
		if exp.Journey != "" {
			units = append(units, unit{section: "journey", header: label + " - Preparation journey", text: exp.Journey})
		}
		for _, r := range exp.Rounds {
			if r.Text == "" {
				continue
			}
			units = append(units, unit{
				section: fmt.Sprintf("round %d", r.Number),
				header:  fmt.Sprintf("%s - Round %d", label, r.Number),
				text:    r.Text,
			})
		}
		if exp.Body != "" {
			units = append(units, unit{section: "body", header: label, text: exp.Body})
		}
	}
	if topics := topicsText(data.Topics, len(data.Experiences)); topics != "" {
		units = append(units, unit{section: "topics", header: "Topic mentions", text: topics})
	}
	if len(data.Tips) > 0 {
		units = append(units, unit{section: "tips", header: "Preparation tips", text: "- " + strings.Join(data.Tips, "\n- ")})
	}

	var chunks []types.Chunk
	for _, u := range units {
		for _, text := range packUnit(u, maxLen) {
			order := len(chunks)
			chunks = append(chunks, types.Chunk{
				ID:      uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%d\x00%s", order, text))).String(),
				Order:   order,
				Section: u.section,
				Text:    text,
			})
		}
	}
	return chunks
}

func packUnit(u unit, maxLen int) []string {
	whole := u.header + "\n" + u.text
	if runeLen(whole) <= maxLen {
		return []string{whole}
	}

	budget := maxLen - runeLen(u.header) - 1
	if budget < minChunkSize/2 {
		budget = minChunkSize / 2
	}

	var pieces []string
	var cur []string
	curLen := 0
	flush := func() {
		if len(cur) > 0 {
			pieces = append(pieces, u.header+"\n"+strings.Join(cur, " "))
			cur, curLen = nil, 0
		}
	}

	for _, sentence := range splitSentences(u.text) {
		parts := []string{sentence}
		if runeLen(sentence) > budget {
			parts = hardWrap(sentence, budget)
		}
		for _, p := range parts {
			n := runeLen(p)
			if curLen > 0 && curLen+1+n > budget {
				flush()
			}
			if curLen > 0 {
				curLen++
			}
			cur = append(cur, p)
			curLen += n
		}
	}
	flush()
	return pieces
}

func overviewText(data *types.InterviewData) string {
	if len(data.Experiences) == 0 {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d interview experiences were collected.\n", len(data.Experiences))

	counts := make(map[int]int)
	for i, exp := range data.Experiences {
		fmt.Fprintf(&sb, "Experience %d had %d rounds.\n", i+1, len(exp.Rounds))
		counts[len(exp.Rounds)]++
	}

	keys := make([]int, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "%d experiences had %d rounds.\n", counts[k], k)
	}
	for _, r := range data.Rounds {
		fmt.Fprintf(&sb, "Round %d is described in %d experiences.\n", r.Number, len(r.Entries))
	}
	return strings.TrimSpace(sb.String())
}

func topicsText(topics []types.TopicCount, experiences int) string {
	if len(topics) == 0 || experiences == 0 {
		return ""
	}
	lines := make([]string, 0, len(topics))
	for _, t := range topics {
		pct := float64(t.Mentions) * 100 / float64(experiences)
		lines = append(lines, fmt.Sprintf("- %s: mentioned in %d of %d experiences (%.0f%%)", t.Topic, t.Mentions, experiences, pct))
	}
	return strings.Join(lines, "\n")
}
