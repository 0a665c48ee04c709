package llm

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BuildChatRequest assembles a single-turn user message: the prompt as a text
// part followed by one image_url part per image reference, in order.
// Relative references are resolved under imageDir. The first unreadable image
// aborts the build so that no partial request is ever sent.
func BuildChatRequest(model, prompt string, images []string, imageDir string) (*ChatRequest, error) {
	content := make([]ContentPart, 0, len(images)+1)
	content = append(content, ContentPart{Type: PartTypeText, Text: prompt})

	for _, ref := range images {
		uri, err := EncodeImageDataURI(ref, imageDir)
		if err != nil {
			return nil, err
		}
		content = append(content, ContentPart{
			Type:     PartTypeImageURL,
			ImageURL: &ImageURL{URL: uri},
		})
	}

	return &ChatRequest{
		Model:  model,
		Stream: false,
		Messages: []Message{{
			Role:    RoleUser,
			Content: content,
		}},
	}, nil
}

// EncodeImageDataURI reads an image reference and returns it as a base64 data
// URI. References already in data:image/ form are returned unchanged.
func EncodeImageDataURI(ref, imageDir string) (string, error) {
	if strings.HasPrefix(strings.ToLower(ref), "data:image/") {
		return ref, nil
	}

	data, err := os.ReadFile(ResolveImagePath(ref, imageDir))
	if err != nil {
		return "", fmt.Errorf("read image %s: %w", ref, err)
	}

	return "data:image/" + ImageMediaSubtype(ref) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// ResolveImagePath maps a reference to a filesystem path
func ResolveImagePath(ref, imageDir string) string {
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(imageDir, ref)
}

// ImageMediaSubtype infers the data URI subtype from the file extension:
// jpeg for .jpg/.jpeg, png for everything else.
func ImageMediaSubtype(ref string) string {
	lower := strings.ToLower(ref)
	if strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg") {
		return "jpeg"
	}
	return "png"
}
