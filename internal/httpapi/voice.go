package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/yanyan-huang/pmpal/internal/observability"
	"github.com/yanyan-huang/pmpal/internal/policy"
	"github.com/yanyan-huang/pmpal/internal/protocol"
	"github.com/yanyan-huang/pmpal/internal/transcribe"
)

const (
	voiceDisabledText = "🎙️ Voice messages aren't enabled right now. Please type your question instead."
	voiceFailedText   = "🎙️ Sorry, I couldn't make out that voice message. Please try again or type your question."
)

type voiceResponse struct {
	Reply      string `json:"reply"`
	Kind       string `json:"kind"`
	Mode       string `json:"mode,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// handleVoice accepts a multipart upload (user_id, audio), transcribes it and
// runs the transcript as a voice exchange. Transcription failures never reach
// the conversation core.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.cfg.MaxVoiceUploadMiB) << 20
	if maxBytes <= 0 {
		maxBytes = 25 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "audio_too_large", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	userID := strings.TrimSpace(r.FormValue("user_id"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "invalid_user", "user_id is required")
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing_audio", "multipart field audio is required")
		return
	}
	defer file.Close()

	if s.transcriber == nil {
		s.metrics.IncTranscription("disabled")
		respondJSON(w, http.StatusNotImplemented, voiceResponse{Reply: voiceDisabledText, Kind: "voice_disabled"})
		return
	}

	log := observability.LoggerFromContext(r.Context()).With("user_id", userID)
	transcript, err := s.transcriber.Transcribe(r.Context(), header.Filename, file)
	if err != nil {
		if r.Context().Err() != nil {
			log.Info("voice upload abandoned", "error", err)
			return
		}
		s.metrics.IncTranscription("error")
		log.Warn("transcription failed", "stt", s.transcriber.Name(), "error", err)
		status := http.StatusBadGateway
		if errors.Is(err, transcribe.ErrTranscription) {
			status = http.StatusUnprocessableEntity
		}
		respondJSON(w, status, voiceResponse{Reply: voiceFailedText, Kind: "transcription_failed"})
		return
	}
	s.metrics.IncTranscription("ok")
	log.Info("voice transcribed", "stt", s.transcriber.Name(), "preview", policy.Preview(transcript, 80))

	reply, err := s.manager.ProcessInput(r.Context(), userID, transcript, protocol.SourceVoice)
	if err != nil {
		respondManagerError(w, r, "voice exchange", err)
		return
	}
	respondJSON(w, http.StatusOK, voiceResponse{
		Reply:      reply.Text,
		Kind:       string(reply.Kind),
		Mode:       reply.Mode,
		Transcript: transcript,
	})
}
