package httpapi

import (
	"net/http"

	"parallelcamera/internal/gateway"
)

func (s *Server) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, s.logger, http.MethodPost) {
		return
	}
	var req analyzeImageRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	description, err := s.gateway.Describe(r.Context(), gateway.DescribeRequest{
		Image:     req.Image,
		Location:  req.Location,
		Character: req.Character,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"description": description})
}

func (s *Server) handleCreativeElement(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, s.logger, http.MethodPost) {
		return
	}
	var req creativeElementRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	element, err := s.gateway.Augment(r.Context(), req.Description)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"creativeElement": element})
}

type generateImageResponse struct {
	Success     bool   `json:"success"`
	Image       string `json:"image"`
	Description string `json:"description"`
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, s.logger, http.MethodPost) {
		return
	}
	var req generateImageRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	img, err := s.gateway.Generate(r.Context(), gateway.GenerateRequest{
		Description:   req.Description,
		Mode:          req.Mode,
		Character:     req.Character,
		OriginalImage: req.OriginalImage,
		UserPrompt:    req.UserPrompt,
	})
	if err == nil && img.DataURI == "" {
		err = gateway.NoImageError(gateway.CapabilityGenerate)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, generateImageResponse{
		Success:     true,
		Image:       img.DataURI,
		Description: req.Description,
	})
}

func (s *Server) handleSpeechToText(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, s.logger, http.MethodPost) {
		return
	}
	var req speechToTextRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	text, err := s.gateway.Transcribe(r.Context(), gateway.TranscribeRequest{Audio: req.Audio, MimeType: req.MimeType})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"text": text})
}
