package speech

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"odiadev-tts-server-go/internal/domain/voice"
	"odiadev-tts-server-go/internal/domain/voice/clone"
	platformerrors "odiadev-tts-server-go/internal/platform/errors"
	httptransport "odiadev-tts-server-go/internal/transport/http"
)

// handleVoices lists every registered voice.
// @Summary List voices
// @Tags Voices
// @Produce json
// @Success 200 {object} httptransport.APIResponse
// @Router /voices [get]
func (s *Service) handleVoices(c *gin.Context) {
	profiles := s.voices.List()
	summaries := make([]voice.Summary, 0, len(profiles))
	for _, p := range profiles {
		summaries = append(summaries, p.Summary())
	}
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"voices":        summaries,
		"count":         len(summaries),
		"default_voice": s.speech.DefaultVoice(),
	}, "")
}

// handleCloneSubmit accepts a voice sample and queues a clone job.
// @Summary Clone a voice from an audio sample
// @Tags Voices
// @Accept multipart/form-data
// @Produce json
// @Param audio formData file true "Voice sample (wav or mp3)"
// @Param voice_id formData string true "New voice ID"
// @Param base_voice formData string false "Voice the clone is derived from"
// @Success 202 {object} httptransport.APIResponse
// @Failure 400 {object} httptransport.APIResponse
// @Router /clone-voice [post]
func (s *Service) handleCloneSubmit(c *gin.Context) {
	header, err := c.FormFile("audio")
	if err != nil {
		s.respondError(c, platformerrors.Reclassify(platformerrors.KindInvalidRequest, "speech.clone", "multipart field audio is required", err))
		return
	}

	priority, err := s.clonePriority(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	file, err := header.Open()
	if err != nil {
		s.respondError(c, platformerrors.Reclassify(platformerrors.KindInvalidRequest, "speech.clone", "cannot read uploaded sample", err))
		return
	}
	defer file.Close()

	job, err := s.clone.Submit(c.Request.Context(), clone.SubmitRequest{
		VoiceID:   c.PostForm("voice_id"),
		BaseVoice: c.PostForm("base_voice"),
		Filename:  header.Filename,
		Priority:  priority,
	}, file)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.logger.InfoTag("HTTP", "clone job %s queued for voice %s", job.ID, job.VoiceID)
	httptransport.RespondSuccess(c, http.StatusAccepted, gin.H{"job": job}, "clone job queued")
}

// clonePriority ranks a job by the caller's tier. Anonymous uploads get the
// lowest priority; an unknown key is rejected.
func (s *Service) clonePriority(c *gin.Context) (int, error) {
	key := apiKey(c, c.PostForm("api_key"))
	if key == "" {
		return 0, nil
	}
	_, plan, err := s.ledger.Snapshot(c.Request.Context(), key)
	if err != nil {
		return 0, err
	}
	for i, p := range s.ledger.Plans() {
		if p.Tier == plan.Tier {
			return i + 1, nil
		}
	}
	return 0, nil
}

// handleCloneStatus reports one clone job.
// @Summary Clone job status
// @Tags Voices
// @Produce json
// @Param job_id path string true "Job ID"
// @Success 200 {object} httptransport.APIResponse
// @Failure 404 {object} httptransport.APIResponse
// @Router /clone-voice/{job_id} [get]
func (s *Service) handleCloneStatus(c *gin.Context) {
	job, ok := s.clone.Get(c.Param("job_id"))
	if !ok {
		s.respondNotFound(c, "clone job not found")
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{"job": job}, "")
}
