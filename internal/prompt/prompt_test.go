package prompt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poster-studio/internal/dataurl"
	"poster-studio/internal/poster"
)

func sampleSubmission() poster.Submission {
	return poster.Submission{
		Name:          "Nova",
		Details:       "Frosted glass capsule toy, limited aurora edition",
		ProductImages: []dataurl.Image{{MimeType: "image/png", Data: []byte{1}}},
		Styles:        []string{"Minimalist", "Cinematic"},
		Constraints:   []string{"Keep logo legible"},
	}
}

func TestProposalsIsDeterministic(t *testing.T) {
	a := New(Options{})
	first := a.Proposals(sampleSubmission())
	second := a.Proposals(sampleSubmission())

	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, first.SystemInstruction, second.SystemInstruction)

	rawFirst, err := json.Marshal(first.Schema)
	require.NoError(t, err)
	rawSecond, err := json.Marshal(second.Schema)
	require.NoError(t, err)
	assert.JSONEq(t, string(rawFirst), string(rawSecond))
}

func TestProposalsEmbedsSubmission(t *testing.T) {
	spec := New(Options{Language: "English"}).Proposals(sampleSubmission())

	assert.Equal(t, KindProposals, spec.Kind)
	assert.Equal(t, "application/json", spec.ResponseMIMEType)
	assert.Equal(t, DefaultSystemInstruction, spec.SystemInstruction)
	for _, want := range []string{
		"Create 3 distinct poster design proposals",
		"- Name: Nova",
		"- Details: Frosted glass capsule toy",
		"- Selected styles: Minimalist, Cinematic",
		"- Mandatory constraints: Keep logo legible",
		"copyTitle: headline (English)",
	} {
		assert.Contains(t, spec.Text, want)
	}
	assert.NotContains(t, spec.Text, "Style reference")
}

func TestProposalsWithEmptyTags(t *testing.T) {
	sub := sampleSubmission()
	sub.Styles = nil
	sub.Constraints = nil
	sub.Details = ""

	spec := New(Options{}).Proposals(sub)
	assert.Contains(t, spec.Text, "- Details: none")
	assert.Contains(t, spec.Text, "- Selected styles: none")
	assert.Contains(t, spec.Text, "- Mandatory constraints: none")
}

func TestProposalsReferenceOnlyWhenEnabled(t *testing.T) {
	sub := sampleSubmission()
	sub.ReferenceDescription = "neon reflections"
	sub.ReferenceImages = []dataurl.Image{{MimeType: "image/jpeg", Data: []byte{2}}}

	spec := New(Options{}).Proposals(sub)
	assert.NotContains(t, spec.Text, "neon reflections")

	sub.UseReference = true
	spec = New(Options{}).Proposals(sub)
	assert.Contains(t, spec.Text, "- Style reference: neon reflections")
	assert.Contains(t, spec.Text, "style references only")
}

func TestProposalBatchSchemaRequiresAllFields(t *testing.T) {
	raw, err := json.Marshal(ProposalBatchSchema())
	require.NoError(t, err)

	var decoded struct {
		Type     string `json:"type"`
		MinItems int    `json:"minItems"`
		MaxItems int    `json:"maxItems"`
		Items    struct {
			Type       string                     `json:"type"`
			Required   []string                   `json:"required"`
			Properties map[string]json.RawMessage `json:"properties"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "array", decoded.Type)
	assert.Equal(t, 3, decoded.MinItems)
	assert.Equal(t, 3, decoded.MaxItems)
	assert.Equal(t, "object", decoded.Items.Type)
	fields := []string{"id", "title", "description", "copyTitle", "copySubtitle", "copyBody", "visualDirection"}
	assert.ElementsMatch(t, fields, decoded.Items.Required)
	assert.Len(t, decoded.Items.Properties, len(fields))
}

func TestPosterPrompt(t *testing.T) {
	p := poster.Proposal{
		VisualDirection: "Capsule floating over a violet aurora, soft rim light",
		CopyTitle:       "Catch the Aurora",
	}
	cfg := poster.GenerationConfig{AspectRatio: "9:16", ImageSize: "2K", Model: poster.ModelPremium}

	spec := New(Options{}).Poster(p, cfg)
	assert.Equal(t, KindPoster, spec.Kind)
	assert.Nil(t, spec.Schema)
	assert.Contains(t, spec.Text, "Capsule floating over a violet aurora")
	assert.Contains(t, spec.Text, `headline "Catch the Aurora"`)
	assert.Contains(t, spec.Text, "Aspect ratio 9:16.")
	assert.Contains(t, spec.Text, "Strictly preserve the product's appearance")
	assert.Equal(t, spec.Text, New(Options{}).Poster(p, cfg).Text)
}

func TestEditPrompt(t *testing.T) {
	spec := New(Options{}).Edit("  make the background warmer.  ")
	assert.Equal(t, KindEdit, spec.Kind)
	assert.Contains(t, spec.Text, "Modify this poster: make the background warmer.")
	assert.Contains(t, spec.Text, "only adjust the background, lighting or local atmosphere")
}

func TestAnalysisPrompt(t *testing.T) {
	spec := New(Options{Language: "English"}).Analysis()
	assert.Equal(t, KindAnalysis, spec.Kind)
	for _, want := range []string{"Product fidelity", "Composition", "Copy fit", "Audience appeal", "in English"} {
		assert.Contains(t, spec.Text, want)
	}
}
