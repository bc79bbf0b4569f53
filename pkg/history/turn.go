package history

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Status string

const (
	StatusStreaming Status = "streaming"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

// Terminal reports whether no further content updates are expected.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Turn is one entry of the chat history.
type Turn struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// Style and Model are only set on assistant turns.
	Style  string `json:"style,omitempty"`
	Model  string `json:"model,omitempty"`
	Status Status `json:"status"`
	// Durations in whole milliseconds, nil until known.
	TimeToFirstToken *int64    `json:"timeToFirstToken"`
	TotalTime        *int64    `json:"totalTime"`
	CycleID          string    `json:"cycleId,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (t Turn) clone() Turn {
	out := t
	if t.TimeToFirstToken != nil {
		v := *t.TimeToFirstToken
		out.TimeToFirstToken = &v
	}
	if t.TotalTime != nil {
		v := *t.TotalTime
		out.TotalTime = &v
	}
	return out
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Content          *string
	Status           *Status
	TimeToFirstToken *int64
	TotalTime        *int64
}

func ContentPatch(content string) Patch {
	return Patch{Content: &content}
}

func StatusPatch(s Status) Patch {
	return Patch{Status: &s}
}

// WithTiming returns a copy of p that also stamps the given durations. Nil
// durations leave the turn's values unchanged.
func (p Patch) WithTiming(ttft, total *int64) Patch {
	if ttft != nil {
		v := *ttft
		p.TimeToFirstToken = &v
	}
	if total != nil {
		v := *total
		p.TotalTime = &v
	}
	return p
}
