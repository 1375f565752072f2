package model

// TrimRange restricts processing to [Start, End]. End may be omitted for an
// open-ended trim.
type TrimRange struct {
	Start float64  `json:"start" validate:"gte=0"`
	End   *float64 `json:"end,omitempty" validate:"omitempty,gtfield=Start"`
}

// Operations is the declarative description of the requested transform.
// It is pure data; the engine turns it into a concrete ffmpeg invocation.
type Operations struct {
	Trim        *TrimRange `json:"trim,omitempty"`
	Captions    bool       `json:"captions,omitempty"`
	Transitions []string   `json:"transitions,omitempty"`
	Format      string     `json:"format,omitempty"`
}

// FormatSocial pads output to a vertical 1080x1920 canvas.
const FormatSocial = "social"
