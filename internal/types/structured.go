package types

// InterviewData is the structured tree derived from the concatenated
// descriptions of one query.
type InterviewData struct {
	Experiences []Experience   `json:"experiences"`
	Rounds      []RoundSummary `json:"rounds"`
	Tips        []string       `json:"tips"`
	Topics      []TopicCount   `json:"topics"`
}

// Experience is a single interview write-up split into sections.
type Experience struct {
	Journey string  `json:"journey,omitempty"`
	Rounds  []Round `json:"rounds,omitempty"`
	Body    string  `json:"body,omitempty"` // unsectioned text from the fallback container
}

// Round is the text of one numbered interview round.
type Round struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// RoundSummary groups the text of a round number across experiences.
type RoundSummary struct {
	Number  int      `json:"number"`
	Entries []string `json:"entries"`
}

// TopicCount is the number of experiences that mention a topic.
type TopicCount struct {
	Topic    string `json:"topic"`
	Mentions int    `json:"mentions"`
}

// Chunk is a bounded span of normalized text, the unit embedded into the index.
type Chunk struct {
	ID      string `json:"id"`
	Order   int    `json:"order"`
	Section string `json:"section"`
	Text    string `json:"text"`
}

// Turn is one question/answer exchange.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
