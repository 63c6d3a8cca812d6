package normalize

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jonathan/intbuddy/internal/schemas"
	"github.com/jonathan/intbuddy/internal/scrape"
	"github.com/jonathan/intbuddy/internal/types"
)

// Separator joins the descriptions of a result set into one blob.
const Separator = "\n\n---\n\n"

var roundHeading = regexp.MustCompile(`^###\s*Round\s+(\d+)\s*$`)

// tipMarkers flag a sentence as preparation advice.
var tipMarkers = []string{
	"tip", "advice", "advise", "suggest", "recommend", "make sure", "should",
	"practice", "practise", "focus on", "avoid", "mistake", "don't", "do not",
}

// topicLexicon maps a topic label to the pattern that detects a mention.
var topicLexicon = []struct {
	topic   string
	pattern *regexp.Regexp
}{
	{"arrays", regexp.MustCompile(`(?i)\barrays?\b|\bsubarrays?\b`)},
	{"strings", regexp.MustCompile(`(?i)\bstrings?\b|\bsubstrings?\b|\bpalindromes?\b`)},
	{"linked lists", regexp.MustCompile(`(?i)\blinked ?lists?\b`)},
	{"stacks and queues", regexp.MustCompile(`(?i)\bstacks?\b|\bqueues?\b`)},
	{"hashing", regexp.MustCompile(`(?i)\bhash ?maps?\b|\bhash ?tables?\b|\bhashing\b`)},
	{"trees", regexp.MustCompile(`(?i)\btrees?\b|\bbst\b|\btries?\b`)},
	{"graphs", regexp.MustCompile(`(?i)\bgraphs?\b|\bbfs\b|\bdfs\b|\bdijkstra\b`)},
	{"heaps", regexp.MustCompile(`(?i)\bheaps?\b|\bpriority queues?\b`)},
	{"dynamic programming", regexp.MustCompile(`(?i)\bdynamic programming\b|\bdp\b|\bmemoi[sz]ation\b`)},
	{"recursion and backtracking", regexp.MustCompile(`(?i)\brecursi(on|ve)\b|\bbacktracking\b`)},
	{"sorting and searching", regexp.MustCompile(`(?i)\bbinary search\b|\bsorting\b|\bsort\b`)},
	{"system design", regexp.MustCompile(`(?i)\bsystem design\b|\bhld\b|\blld\b|\blow[- ]level design\b|\bhigh[- ]level design\b`)},
	{"object oriented design", regexp.MustCompile(`(?i)\boops?\b|\bobject[- ]oriented\b|\bdesign patterns?\b`)},
	{"databases", regexp.MustCompile(`(?i)\bdbms\b|\bsql\b|\bdatabases?\b|\bnormali[sz]ation\b`)},
	{"operating systems", regexp.MustCompile(`(?i)\boperating systems?\b|\bdeadlocks?\b|\bthreads?\b|\bprocesses\b`)},
	{"computer networks", regexp.MustCompile(`(?i)\bcomputer networks?\b|\bnetworking\b|\btcp\b|\bhttp\b`)},
	{"behavioral", regexp.MustCompile(`(?i)\bbehaviou?ral\b|\bhr round\b|\bleadership principles?\b|\bmanagerial\b`)},
	{"projects", regexp.MustCompile(`(?i)\bprojects?\b|\binternships?\b`)},
}

// Join concatenates the descriptions of records with Separator.
func Join(records []types.InterviewRecord) string {
	parts := make([]string, 0, len(records))
	for _, r := range records {
		parts = append(parts, r.Description)
	}
	return strings.Join(parts, Separator)
}

// Structure parses a joined description blob into an InterviewData tree.
func Structure(blob string) *types.InterviewData {
	data := &types.InterviewData{
		Experiences: []types.Experience{},
		Rounds:      []types.RoundSummary{},
		Tips:        []string{},
		Topics:      []types.TopicCount{},
	}

	for _, raw := range strings.Split(blob, Separator) {
		text := CleanText(raw)
		if text == "" {
			continue
		}
		data.Experiences = append(data.Experiences, parseExperience(text))
	}

	data.Rounds = summarizeRounds(data.Experiences)
	data.Tips = extractTips(data.Experiences)
	data.Topics = countTopics(data.Experiences)
	return data
}

// Validate checks data against the interview data JSON schema.
func Validate(data *types.InterviewData) error {
	return schemas.ValidateInterviewData(data)
}

func parseExperience(text string) types.Experience {
	var exp types.Experience
	var journey, body []string
	var round *types.Round
	var roundLines []string

	const (
		inBody = iota
		inJourney
		inRound
	)
	section := inBody

	closeRound := func() {
		if round != nil {
			round.Text = strings.TrimSpace(strings.Join(roundLines, "\n"))
			exp.Rounds = append(exp.Rounds, *round)
			round = nil
			roundLines = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == scrape.JourneyHeading:
			closeRound()
			section = inJourney
			continue
		case trimmed == scrape.RoundsHeading:
			closeRound()
			section = inBody
			continue
		}
		if m := roundHeading.FindStringSubmatch(trimmed); m != nil {
			closeRound()
			n, _ := strconv.Atoi(m[1])
			round = &types.Round{Number: n}
			section = inRound
			continue
		}

		switch section {
		case inJourney:
			journey = append(journey, line)
		case inRound:
			roundLines = append(roundLines, line)
		default:
			body = append(body, line)
		}
	}
	closeRound()

	exp.Journey = strings.TrimSpace(strings.Join(journey, "\n"))
	exp.Body = strings.TrimSpace(strings.Join(body, "\n"))
	return exp
}

func summarizeRounds(experiences []types.Experience) []types.RoundSummary {
	byNumber := make(map[int][]string)
	for _, exp := range experiences {
		for _, r := range exp.Rounds {
			if r.Text == "" {
				continue
			}
			byNumber[r.Number] = append(byNumber[r.Number], r.Text)
		}
	}

	numbers := make([]int, 0, len(byNumber))
	for n := range byNumber {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	out := make([]types.RoundSummary, 0, len(numbers))
	for _, n := range numbers {
		out = append(out, types.RoundSummary{Number: n, Entries: byNumber[n]})
	}
	return out
}

func extractTips(experiences []types.Experience) []string {
	seen := make(map[string]bool)
	tips := []string{}
	for _, exp := range experiences {
		for _, s := range splitSentences(experienceText(exp)) {
			lower := strings.ToLower(s)
			if seen[lower] || runeLen(s) < 15 {
				continue
			}
			for _, marker := range tipMarkers {
				if strings.Contains(lower, marker) {
					seen[lower] = true
					tips = append(tips, s)
					break
				}
			}
		}
	}
	return tips
}

func countTopics(experiences []types.Experience) []types.TopicCount {
	var out []types.TopicCount
	for _, entry := range topicLexicon {
		mentions := 0
		for _, exp := range experiences {
			if entry.pattern.MatchString(experienceText(exp)) {
				mentions++
			}
		}
		if mentions > 0 {
			out = append(out, types.TopicCount{Topic: entry.topic, Mentions: mentions})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Mentions > out[j].Mentions
	})
	if out == nil {
		return []types.TopicCount{}
	}
	return out
}

func experienceText(exp types.Experience) string {
	parts := []string{exp.Journey, exp.Body}
	for _, r := range exp.Rounds {
		parts = append(parts, r.Text)
	}
	return strings.Join(parts, "\n")
}
