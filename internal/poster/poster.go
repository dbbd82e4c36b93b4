// Package poster holds the wizard's data model: the product submission, the
// proposals returned for it, the generation settings and the poster artifact.
package poster

import (
	"strings"

	"poster-studio/internal/dataurl"
)

// ProposalBatchSize is the number of proposals requested per submission.
const ProposalBatchSize = 3

const (
	MaxProductImages   = 10
	MaxReferenceImages = 10
)

type Submission struct {
	Name                 string          `validate:"required"`
	Details              string
	ProductImages        []dataurl.Image `validate:"min=1,max=10"`
	ReferenceImages      []dataurl.Image `validate:"max=10"`
	ReferenceDescription string
	UseReference         bool
	Styles               []string
	Constraints          []string
}

// Normalized returns a trimmed copy with de-duplicated tags and its own image
// slices, so later changes by the caller do not leak into wizard state.
func (s Submission) Normalized() Submission {
	out := s
	out.Name = strings.TrimSpace(s.Name)
	out.Details = strings.TrimSpace(s.Details)
	out.ReferenceDescription = strings.TrimSpace(s.ReferenceDescription)
	out.ProductImages = append([]dataurl.Image(nil), s.ProductImages...)
	out.ReferenceImages = append([]dataurl.Image(nil), s.ReferenceImages...)
	out.Styles = uniqueTags(s.Styles)
	out.Constraints = uniqueTags(s.Constraints)
	return out
}

// Proposal is one poster concept. Field names match the JSON the model is
// asked to produce.
type Proposal struct {
	ID              string `json:"id" jsonschema:"required"`
	Title           string `json:"title" jsonschema:"required"`
	Description     string `json:"description" jsonschema:"required"`
	CopyTitle       string `json:"copyTitle" jsonschema:"required"`
	CopySubtitle    string `json:"copySubtitle" jsonschema:"required"`
	CopyBody        string `json:"copyBody" jsonschema:"required"`
	VisualDirection string `json:"visualDirection" jsonschema:"required"`
}

// MissingFields lists the JSON names of blank required fields.
func (p Proposal) MissingFields() []string {
	fields := []struct {
		name  string
		value string
	}{
		{"id", p.ID},
		{"title", p.Title},
		{"description", p.Description},
		{"copyTitle", p.CopyTitle},
		{"copySubtitle", p.CopySubtitle},
		{"copyBody", p.CopyBody},
		{"visualDirection", p.VisualDirection},
	}
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

type ModelVariant string

const (
	ModelStandard ModelVariant = "standard"
	ModelPremium  ModelVariant = "premium"
)

// SupportsImageSize reports whether the variant accepts an explicit output
// size. The standard model rejects requests that carry one.
func (m ModelVariant) SupportsImageSize() bool {
	return m == ModelPremium
}

type GenerationConfig struct {
	AspectRatio string       `json:"aspectRatio"`
	ImageSize   string       `json:"imageSize"`
	Model       ModelVariant `json:"model"`
}

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		AspectRatio: "1:1",
		ImageSize:   "1K",
		Model:       ModelStandard,
	}
}

// Artifact is the poster currently on display.
type Artifact struct {
	Image    dataurl.Image
	Analysis string
	Version  int
}

func uniqueTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
