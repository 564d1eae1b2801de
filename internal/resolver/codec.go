package resolver

import (
	"encoding/json"

	"github.com/gbordes77/screen2deck/internal/catalogue"
	"github.com/gbordes77/screen2deck/internal/deck"
)

// wireResolution is the JSON-stable shape stored in the cache layers;
// catalogue.Resolution itself has no tags since it is not otherwise
// serialized.
type wireResolution struct {
	CanonicalName string           `json:"canonical_name"`
	ID            string           `json:"id,omitempty"`
	Source        catalogue.Source `json:"source"`
	Candidates    []wireCandidate  `json:"candidates,omitempty"`
}

type wireCandidate struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	ID    string  `json:"id,omitempty"`
}

func encodeResolution(r catalogue.Resolution) []byte {
	w := wireResolution{
		CanonicalName: r.CanonicalName,
		ID:            r.ID,
		Source:        r.Source,
	}
	for _, c := range r.Candidates {
		w.Candidates = append(w.Candidates, wireCandidate{Name: c.Name, Score: c.Score, ID: c.ID})
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil
	}
	return data
}

func decodeResolution(data []byte) (catalogue.Resolution, error) {
	var w wireResolution
	if err := json.Unmarshal(data, &w); err != nil {
		return catalogue.Resolution{}, err
	}
	r := catalogue.Resolution{
		CanonicalName: w.CanonicalName,
		ID:            w.ID,
		Source:        w.Source,
	}
	for _, c := range w.Candidates {
		r.Candidates = append(r.Candidates, deck.Candidate{Name: c.Name, Score: c.Score, ID: c.ID})
	}
	return r, nil
}
