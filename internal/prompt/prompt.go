// Package prompt assembles the natural-language instructions and structured
// output schemas sent to the generative service. Every builder is a pure
// function of its inputs.
package prompt

import (
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"poster-studio/internal/poster"
)

type Kind string

const (
	KindProposals Kind = "proposals"
	KindPoster    Kind = "poster"
	KindEdit      Kind = "edit"
	KindAnalysis  Kind = "analysis"
)

// DefaultLanguage is the language proposals, copy and critiques are written in.
const DefaultLanguage = "Traditional Chinese (zh-TW)"

const DefaultSystemInstruction = `You are the creative director of a product poster studio.
You turn product facts and style preferences into poster concepts that a
photographer and an image model can execute.
Rules:
1. The product itself is never redesigned: shape, color, material, label and logo stay exactly as photographed.
2. Every concept must differ clearly from the others in composition, palette and mood.
3. Copy is short, concrete and ready to print; no placeholders, no emoji, no hashtags.
4. Visual directions are written for an image model: subject placement, background, lighting, lens, palette, mood.`

// Spec is one assembled request: instruction text plus, for structured
// requests, the JSON schema the response must satisfy.
type Spec struct {
	Kind              Kind
	SystemInstruction string
	Text              string
	Schema            *jsonschema.Schema
	ResponseMIMEType  string
}

type Options struct {
	Language          string
	SystemInstruction string
}

type Assembler struct {
	language          string
	systemInstruction string
}

func New(opts Options) *Assembler {
	language := strings.TrimSpace(opts.Language)
	if language == "" {
		language = DefaultLanguage
	}
	system := strings.TrimSpace(opts.SystemInstruction)
	if system == "" {
		system = DefaultSystemInstruction
	}
	return &Assembler{language: language, systemInstruction: system}
}

func (a *Assembler) Language() string {
	return a.language
}

// Proposals builds the request for a batch of poster concepts.
func (a *Assembler) Proposals(sub poster.Submission) Spec {
	var b strings.Builder
	fmt.Fprintf(&b, "Create %d distinct poster design proposals for the product below.\n\n", poster.ProposalBatchSize)

	b.WriteString("Product:\n")
	fmt.Fprintf(&b, "- Name: %s\n", strings.TrimSpace(sub.Name))
	fmt.Fprintf(&b, "- Details: %s\n", orNone(sub.Details))
	fmt.Fprintf(&b, "- Selected styles: %s\n", joinOrNone(sub.Styles))
	fmt.Fprintf(&b, "- Mandatory constraints: %s\n", joinOrNone(sub.Constraints))
	if sub.UseReference {
		fmt.Fprintf(&b, "- Style reference: %s\n", orNone(sub.ReferenceDescription))
		if len(sub.ReferenceImages) > 0 {
			b.WriteString("- The attached images are style references only, not the product.\n")
		}
	}

	b.WriteString("\nReturn a JSON array. Each proposal has:\n")
	b.WriteString("- id: short unique identifier\n")
	fmt.Fprintf(&b, "- title: proposal title (%s)\n", a.language)
	fmt.Fprintf(&b, "- description: visual design description (%s)\n", a.language)
	fmt.Fprintf(&b, "- copyTitle: headline (%s)\n", a.language)
	fmt.Fprintf(&b, "- copySubtitle: subheadline (%s)\n", a.language)
	fmt.Fprintf(&b, "- copyBody: short body copy (%s)\n", a.language)
	b.WriteString("- visualDirection: key direction for the image model (English)\n")

	return Spec{
		Kind:              KindProposals,
		SystemInstruction: a.systemInstruction,
		Text:              strings.TrimSpace(b.String()),
		Schema:            ProposalBatchSchema(),
		ResponseMIMEType:  "application/json",
	}
}

// Poster builds the image generation request for a chosen proposal.
func (a *Assembler) Poster(p poster.Proposal, cfg poster.GenerationConfig) Spec {
	lines := []string{
		"Using the attached product photos, create one poster matching the description below.",
		"Strictly preserve the product's appearance from the attached photos: shape, materials, colors, details, label and logo.",
		"",
		strings.TrimSpace(p.VisualDirection),
		"",
		"[Material fidelity] Reproduce the product's materials, lighting response and structure exactly.",
		fmt.Sprintf("[Copy placement] Reserve clean negative space suitable for the headline %q.", strings.TrimSpace(p.CopyTitle)),
		fmt.Sprintf("[Format] Aspect ratio %s.", strings.TrimSpace(cfg.AspectRatio)),
	}
	return Spec{
		Kind: KindPoster,
		Text: strings.Join(lines, "\n"),
	}
}

// Edit builds a refinement request for the current poster.
func (a *Assembler) Edit(instruction string) Spec {
	lines := []string{
		fmt.Sprintf("Modify this poster: %s.", strings.TrimRight(strings.TrimSpace(instruction), ".")),
		"Keep the product itself exactly as it is; only adjust the background, lighting or local atmosphere.",
	}
	return Spec{
		Kind: KindEdit,
		Text: strings.Join(lines, "\n"),
	}
}

// Analysis builds the fixed critique request.
func (a *Assembler) Analysis() Spec {
	lines := []string{
		fmt.Sprintf("As a senior marketing strategist and visual designer, critique this poster in %s.", a.language),
		"Cover:",
		"1. Product fidelity: how faithfully the product is reproduced.",
		"2. Composition: layout, hierarchy, balance and use of negative space.",
		"3. Copy fit: how well the headline space and visual mood support the copy.",
		"4. Audience appeal: score from 1 to 10 for each likely target audience (for example seniors, families, children) with one sentence of reasoning.",
		"Finish with the three most valuable improvements.",
	}
	return Spec{
		Kind: KindAnalysis,
		Text: strings.Join(lines, "\n"),
	}
}

// ProposalBatchSchema describes an array of exactly ProposalBatchSize
// proposals with every field required.
func ProposalBatchSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	item := r.Reflect(&poster.Proposal{})
	item.Version = ""
	item.ID = ""

	n := uint64(poster.ProposalBatchSize)
	return &jsonschema.Schema{
		Type:     "array",
		Items:    item,
		MinItems: &n,
		MaxItems: &n,
	}
}

func orNone(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "none"
	}
	return s
}

func joinOrNone(tags []string) string {
	return orNone(strings.Join(tags, ", "))
}
