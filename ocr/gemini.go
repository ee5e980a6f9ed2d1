package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const geminiPrompt = `Transcribe every line of text on this lottery ticket exactly as printed.
Output one printed line per output line, in top to bottom order.
Keep leading zeros, dates and times as they appear. Do not add commentary.`

// Gemini asks a Gemini model to transcribe the ticket
type Gemini struct {
	APIKey string
	Model  string
}

// NewGemini creates the provider; a client is opened per request
func NewGemini(apiKey, model string) *Gemini {
	return &Gemini{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
	}
}

func (g *Gemini) Name() string { return "gemini" }

// Recognize sends the preprocessed image as PNG and splits the reply into lines
func (g *Gemini) Recognize(ctx context.Context, img image.Image) ([]string, error) {
	if g.APIKey == "" {
		return nil, errors.New("gemini api key is empty")
	}

	data, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(g.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(g.Model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(0),
	}

	resp, err := m.GenerateContent(ctx, genai.ImageData("png", data), genai.Text(geminiPrompt))
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	txt := firstText(resp)
	if txt == "" {
		return nil, errors.New("gemini: empty response")
	}
	return splitLines(stripCodeFences(txt)), nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func ptrFloat32(v float32) *float32 { return &v }
