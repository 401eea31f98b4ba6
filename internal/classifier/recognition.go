package classifier

// Recognition is one labeled score.
type Recognition struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
}
