package coordinator

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const (
	DefaultStyle = "default"
	DefaultModel = "gpt-4.1"

	MaxTextLength         = 2000
	MaxInstructionsLength = 500
)

var (
	ErrEmptyText           = errors.New("text is empty")
	ErrTextTooLong         = errors.Errorf("text exceeds %d characters", MaxTextLength)
	ErrInstructionsTooLong = errors.Errorf("additional instructions exceed %d characters", MaxInstructionsLength)
)

// StyleList is an ordered list of requested styles. It unmarshals from either
// a JSON array or a single string.
type StyleList []string

func (l *StyleList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if strings.TrimSpace(single) == "" {
			*l = nil
			return nil
		}
		*l = StyleList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return errors.Wrap(err, "styles must be a string or a list of strings")
	}
	*l = many
	return nil
}

// Submission is what the user asks for in one cycle.
type Submission struct {
	Text                   string    `json:"text"`
	Styles                 StyleList `json:"styles"`
	Model                  string    `json:"model,omitempty"`
	AdditionalInstructions string    `json:"additional_instructions,omitempty"`
}

func SingleStyle(text, style, model string) Submission {
	return Submission{Text: text, Styles: StyleList{style}, Model: model}
}

// Normalize trims fields and applies defaults. Duplicate styles are kept, each
// gets its own turn.
func (s Submission) Normalize(defaultModel string) (Submission, error) {
	out := Submission{
		Text:                   strings.TrimSpace(s.Text),
		Model:                  strings.TrimSpace(s.Model),
		AdditionalInstructions: strings.TrimSpace(s.AdditionalInstructions),
	}
	if out.Text == "" {
		return Submission{}, ErrEmptyText
	}
	if utf8.RuneCountInString(out.Text) > MaxTextLength {
		return Submission{}, ErrTextTooLong
	}
	if utf8.RuneCountInString(out.AdditionalInstructions) > MaxInstructionsLength {
		return Submission{}, ErrInstructionsTooLong
	}
	for _, st := range s.Styles {
		st = strings.TrimSpace(st)
		if st != "" {
			out.Styles = append(out.Styles, st)
		}
	}
	if len(out.Styles) == 0 {
		out.Styles = StyleList{DefaultStyle}
	}
	if out.Model == "" {
		out.Model = defaultModel
	}
	if out.Model == "" {
		out.Model = DefaultModel
	}
	return out, nil
}

// IsValidationError reports whether err came from Normalize.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyText) || errors.Is(err, ErrTextTooLong) || errors.Is(err, ErrInstructionsTooLong)
}

type wireRequest struct {
	Text                   string   `json:"text"`
	Styles                 []string `json:"styles"`
	Model                  string   `json:"model"`
	AdditionalInstructions string   `json:"additional_instructions,omitempty"`
}

func (s Submission) wire() wireRequest {
	return wireRequest{
		Text:                   s.Text,
		Styles:                 append([]string(nil), s.Styles...),
		Model:                  s.Model,
		AdditionalInstructions: s.AdditionalInstructions,
	}
}
