package gemini

import (
	"fmt"
	"strings"

	"poster-studio/internal/dataurl"
)

// Part is one element of a model response: either an ImagePart or a TextPart.
type Part interface {
	isPart()
}

type ImagePart struct {
	Image dataurl.Image
}

type TextPart struct {
	Text string
}

func (ImagePart) isPart() {}
func (TextPart) isPart()  {}

// reduction is the outcome of scanning a response in order: the first image
// wins and every text segment is kept.
type reduction struct {
	Image    *dataurl.Image
	Texts    []string
	Combined string
}

func (r reduction) FirstText() string {
	for _, t := range r.Texts {
		if strings.TrimSpace(t) != "" {
			return t
		}
	}
	return ""
}

func reduceParts(parts []Part) reduction {
	var (
		out reduction
		b   strings.Builder
	)
	for _, p := range parts {
		switch v := p.(type) {
		case ImagePart:
			if out.Image == nil {
				img := v.Image
				out.Image = &img
			}
		case TextPart:
			out.Texts = append(out.Texts, v.Text)
			b.WriteString(v.Text)
		}
	}
	out.Combined = strings.TrimSpace(b.String())
	return out
}

// decodeParts converts the first candidate's wire parts into Parts. Thought
// parts are internal reasoning and are skipped.
func decodeParts(resp generateContentResponse) ([]Part, error) {
	if len(resp.Candidates) == 0 {
		return nil, nil
	}

	wire := resp.Candidates[0].Content.Parts
	parts := make([]Part, 0, len(wire))
	for i, p := range wire {
		if p.Thought {
			continue
		}
		if p.InlineData != nil && p.InlineData.Data != "" {
			img, err := dataurl.FromBase64(p.InlineData.Data, p.InlineData.MimeType)
			if err != nil {
				return nil, fmt.Errorf("part %d: %w", i, err)
			}
			parts = append(parts, ImagePart{Image: img})
			continue
		}
		if p.Text != "" {
			parts = append(parts, TextPart{Text: p.Text})
		}
	}
	return parts, nil
}

// blockExplanation describes why a response carried nothing, when the
// service said so.
func blockExplanation(resp generateContentResponse) string {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		if msg := strings.TrimSpace(resp.PromptFeedback.BlockReasonMessage); msg != "" {
			return fmt.Sprintf("request blocked (%s): %s", resp.PromptFeedback.BlockReason, msg)
		}
		return fmt.Sprintf("request blocked (%s)", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) > 0 {
		switch reason := resp.Candidates[0].FinishReason; reason {
		case "", "STOP", "FINISH_REASON_UNSPECIFIED":
		default:
			return fmt.Sprintf("generation stopped (%s)", reason)
		}
	}
	return ""
}
