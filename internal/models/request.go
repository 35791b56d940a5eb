package models

type CreateThumbnailRequest struct {
	// Title is required and is rendered into the generation prompt.
	Title string `json:"title" example:"Sunset"`
	// UserPrompt is free-form guidance appended to the generated prompt.
	UserPrompt  string `json:"user_prompt,omitempty" example:"warm colors over the ocean"`
	Style       string `json:"style,omitempty" example:"modern"`
	AspectRatio string `json:"aspect_ratio,omitempty" example:"16:9"`
	ColorScheme string `json:"color_scheme,omitempty" example:"vibrant"`
	TextOverlay bool   `json:"text_overlay,omitempty" example:"false"`
}

// UpdateThumbnailRequest carries a partial update of descriptive fields.
// Omitted fields are left unchanged.
type UpdateThumbnailRequest struct {
	Title       *string `json:"title,omitempty"`
	UserPrompt  *string `json:"user_prompt,omitempty"`
	Style       *string `json:"style,omitempty"`
	AspectRatio *string `json:"aspect_ratio,omitempty"`
	ColorScheme *string `json:"color_scheme,omitempty"`
	TextOverlay *bool   `json:"text_overlay,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
