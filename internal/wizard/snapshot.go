package wizard

import (
	"fmt"

	"poster-studio/internal/poster"
)

type Step int

const (
	StepInput Step = iota
	StepProposal
	StepFinal
)

func (s Step) String() string {
	switch s {
	case StepInput:
		return "input"
	case StepProposal:
		return "proposal"
	case StepFinal:
		return "final"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Step) UnmarshalText(text []byte) error {
	for _, candidate := range []Step{StepInput, StepProposal, StepFinal} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown wizard step %q", text)
}

// InFlight reports which requests are running. Proposals blocks the whole
// wizard; the others only block another request of the same kind.
type InFlight struct {
	Proposals bool `json:"proposals"`
	Poster    bool `json:"poster"`
	Edit      bool `json:"edit"`
	Analysis  bool `json:"analysis"`
}

func (f InFlight) Any() bool {
	return f.Proposals || f.Poster || f.Edit || f.Analysis
}

type SubmissionSummary struct {
	Name                 string   `json:"name"`
	Details              string   `json:"details,omitempty"`
	ProductImages        int      `json:"productImages"`
	ReferenceImages      int      `json:"referenceImages"`
	ReferenceDescription string   `json:"referenceDescription,omitempty"`
	UseReference         bool     `json:"useReference"`
	Styles               []string `json:"styles"`
	Constraints          []string `json:"constraints"`
}

type ArtifactInfo struct {
	MimeType string `json:"mimeType"`
	Bytes    int    `json:"bytes"`
	Version  int    `json:"version"`
}

// Snapshot is a read-only copy of the wizard state. Revision increases with
// every change, so listeners can drop snapshots older than one already seen.
type Snapshot struct {
	Revision   uint64                  `json:"revision"`
	Generation uint64                  `json:"generation"`
	Step       Step                    `json:"step"`
	Submission *SubmissionSummary      `json:"submission,omitempty"`
	Proposals  []poster.Proposal       `json:"proposals"`
	Selected   *poster.Proposal        `json:"selected,omitempty"`
	Config     poster.GenerationConfig `json:"config"`
	Artifact   *ArtifactInfo           `json:"artifact,omitempty"`
	Analysis   string                  `json:"analysis,omitempty"`
	InFlight   InFlight                `json:"inFlight"`
	LastError  string                  `json:"lastError,omitempty"`
}

func summarize(sub *poster.Submission) *SubmissionSummary {
	if sub == nil {
		return nil
	}
	return &SubmissionSummary{
		Name:                 sub.Name,
		Details:              sub.Details,
		ProductImages:        len(sub.ProductImages),
		ReferenceImages:      len(sub.ReferenceImages),
		ReferenceDescription: sub.ReferenceDescription,
		UseReference:         sub.UseReference,
		Styles:               append([]string(nil), sub.Styles...),
		Constraints:          append([]string(nil), sub.Constraints...),
	}
}
