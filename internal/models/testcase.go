package models

// Question is the structured {question, answer} pair returned by the language model.
type Question struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// TestCase binds a generated question to the chunk it was generated from (the ground truth).
type TestCase struct {
	DocID    string `json:"doc_id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// EvaluationResult is the outcome of running one test case against a pipeline.
type EvaluationResult struct {
	Passed          bool                `json:"passed"`
	SourcesReturned map[string]struct{} `json:"-"`
}

// Sources returns the returned sources as a slice (unordered).
func (r EvaluationResult) Sources() []string {
	out := make([]string, 0, len(r.SourcesReturned))
	for s := range r.SourcesReturned {
		out = append(out, s)
	}
	return out
}
