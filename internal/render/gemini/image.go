package gemini

import (
	"context"
	"fmt"

	"gridflow/internal/mediaref"
	"gridflow/internal/render"
)

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ImageConfig *imageConfig `json:"imageConfig,omitempty"`
}

type imageConfig struct {
	ImageSize string `json:"imageSize,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// UpscaleImage asks the image model to re-render the frame at a higher
// quality. The response parts are scanned for the first inline image; a
// response with no image part is invalid.
func (c *Client) UpscaleImage(ctx context.Context, image string, targetFactor float64, hints render.UpscaleHints) (string, error) {
	const operation = "upscale"

	prompt := hints.Prompt
	if prompt == "" {
		prompt = fmt.Sprintf("Upscale this individual frame to HD quality (resize by %gx). Enhance details, remove noise, and preserve the artistic style perfectly.", targetFactor)
	}
	request := generateContentRequest{
		Contents: []content{{
			Parts: []part{
				{InlineData: &inlineData{MimeType: "image/png", Data: mediaref.Base64Payload(image)}},
				{Text: prompt},
			},
		}},
		GenerationConfig: &generationConfig{ImageConfig: &imageConfig{ImageSize: "1K"}},
	}

	var response generateContentResponse
	path := "/v1beta/models/" + c.imageModel + ":generateContent"
	if err := c.postJSON(ctx, operation, path, request, &response); err != nil {
		return "", err
	}
	for _, candidate := range response.Candidates {
		for _, p := range candidate.Content.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				return "data:image/png;base64," + p.InlineData.Data, nil
			}
		}
	}
	return "", render.Wrap(render.ErrInvalidResponse, backendName, operation, "no image part in response", nil)
}
