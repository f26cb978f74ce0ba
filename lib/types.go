package lib

// Candidate is one detector-produced entity occurrence in a string leaf.
// Offsets are byte positions into the analysed string.
type Candidate struct {
	Text       string  `json:"text"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	EntityType string  `json:"entity_type"`
	Score      float64 `json:"score"`
}
