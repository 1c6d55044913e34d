package httpapi

import (
	"encoding/json"
	"strings"

	"parallelcamera/internal/capture"
	"parallelcamera/internal/gateway"
	"parallelcamera/internal/services"
	"parallelcamera/internal/store"
)

type analyzeImageRequest struct {
	Image     string                `json:"image"`
	Location  *store.Location       `json:"location,omitempty"`
	Character *gateway.CharacterRef `json:"character,omitempty"`
}

func (r analyzeImageRequest) Validate() error {
	verr := &services.ValidationError{}
	if strings.TrimSpace(r.Image) == "" {
		verr.Add("image", "is required")
	}
	appendFields(verr, store.ValidateLocation(r.Location))
	validateCharacterRef(verr, r.Character)
	return verr.OrNil()
}

type creativeElementRequest struct {
	Description string `json:"description"`
}

func (r creativeElementRequest) Validate() error {
	if strings.TrimSpace(r.Description) == "" {
		return services.NewValidationError("description", "is required")
	}
	return nil
}

type generateImageRequest struct {
	Description   string                `json:"description"`
	OriginalImage string                `json:"originalImage,omitempty"`
	Mode          store.Mode            `json:"mode"`
	Character     *gateway.CharacterRef `json:"character,omitempty"`
	UserPrompt    string                `json:"userPrompt,omitempty"`
}

func (r generateImageRequest) Validate() error {
	verr := &services.ValidationError{}
	if strings.TrimSpace(r.Description) == "" {
		verr.Add("description", "is required")
	}
	if !r.Mode.Valid() {
		verr.Add("mode", "must be one of realistic, creative, meta")
	}
	validateCharacterRef(verr, r.Character)
	return verr.OrNil()
}

type speechToTextRequest struct {
	Audio    string `json:"audio"`
	MimeType string `json:"mimeType,omitempty"`
}

func (r speechToTextRequest) Validate() error {
	if strings.TrimSpace(r.Audio) == "" {
		return services.NewValidationError("audio", "is required")
	}
	return nil
}

type saveHistoryRequest struct {
	Result json.RawMessage `json:"result"`
}

func (r saveHistoryRequest) Validate() error {
	trimmed := strings.TrimSpace(string(r.Result))
	if trimmed == "" || trimmed == "null" {
		return services.NewValidationError("result", "is required")
	}
	return nil
}

type deleteHistoryRequest struct {
	Index *int   `json:"index,omitempty"`
	ID    string `json:"id,omitempty"`
}

func (r deleteHistoryRequest) Validate() error {
	hasID := strings.TrimSpace(r.ID) != ""
	switch {
	case r.Index == nil && !hasID:
		return services.NewValidationError("index", "index or id is required")
	case r.Index != nil && hasID:
		return services.NewValidationError("index", "send either index or id, not both")
	}
	return nil
}

type createCharacterRequest struct {
	Name           string `json:"name"`
	ReferenceImage string `json:"referenceImage"`
	Description    string `json:"description,omitempty"`
}

func (r createCharacterRequest) record() store.CharacterRecord {
	return store.CharacterRecord{
		Name:           r.Name,
		ReferenceImage: r.ReferenceImage,
		Description:    r.Description,
	}
}

type captureRequest struct {
	Mode        store.Mode      `json:"mode"`
	Image       string          `json:"image"`
	Location    *store.Location `json:"location,omitempty"`
	CharacterID int64           `json:"characterId,omitempty"`
	UserPrompt  string          `json:"userPrompt,omitempty"`
}

func (r captureRequest) capture() capture.Capture {
	return capture.Capture{
		Mode:        r.Mode,
		Image:       r.Image,
		Location:    r.Location,
		CharacterID: r.CharacterID,
	}
}

func (r captureRequest) Validate() error {
	verr := &services.ValidationError{}
	appendFields(verr, r.capture().Validate())
	if r.Mode == store.ModeMeta && strings.TrimSpace(r.UserPrompt) == "" {
		verr.Add("userPrompt", "is required in meta mode")
	}
	if r.Mode != store.ModeMeta && r.UserPrompt != "" {
		verr.Add("userPrompt", "is only allowed in meta mode")
	}
	return verr.OrNil()
}

func validateCharacterRef(verr *services.ValidationError, ref *gateway.CharacterRef) {
	if ref == nil {
		return
	}
	if strings.TrimSpace(ref.Name) == "" {
		verr.Add("character.name", "is required")
	}
	if strings.TrimSpace(ref.ReferenceImage) == "" {
		verr.Add("character.referenceImage", "is required")
	}
}

func appendFields(verr *services.ValidationError, err error) {
	if err == nil {
		return
	}
	if other, ok := err.(*services.ValidationError); ok {
		verr.Fields = append(verr.Fields, other.Fields...)
		return
	}
	verr.Add("request", err.Error())
}
