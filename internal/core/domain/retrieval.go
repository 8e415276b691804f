package domain

// Match is one chunk returned by the vector index.
type Match struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	SectionID string  `json:"section_id,omitempty"`
	Origin    string  `json:"origin,omitempty"`
}

// Source is a cited page. Markers lists the context ordinals that refer to it.
type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Markers []int  `json:"markers,omitempty"`
}

// Reference ties a context marker to the match and page it was rendered from.
type Reference struct {
	Marker  int    `json:"marker"`
	MatchID string `json:"match_id"`
	Source  Source `json:"source"`
}

// AssembledContext is the bounded prompt context for one query.
type AssembledContext struct {
	Text       string
	References []Reference
	Empty      bool
}

// NoRelevantInformationMarker is rendered instead of chunks when retrieval
// produced nothing usable.
const NoRelevantInformationMarker = "NO RELEVANT INFORMATION FOUND"

// IndexRecord is one chunk written to the vector index by the indexer.
type IndexRecord struct {
	ID        string
	Vector    []float32
	Text      string
	Title     string
	URL       string
	SectionID string
	Origin    string
}

// CorpusSection is one NHS page section as stored in the corpus file.
type CorpusSection struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

// IndexReport summarises one indexer run.
type IndexReport struct {
	Sections  int      `json:"sections"`
	Chunks    int      `json:"chunks"`
	Skipped   int      `json:"skipped"`
	Namespace string   `json:"namespace"`
	IDs       []string `json:"ids,omitempty"`
}

// RetrievalLimits bounds one query's retrieval and context assembly.
type RetrievalLimits struct {
	DefaultResultCount int
	MaxResultCount     int
	ScoreFloor         float64
	MaxContextChars    int
}

// PromptSettings are the source-specific pieces of the system prompt.
type PromptSettings struct {
	ContextDescription string
	NotFoundMessage    string
}
