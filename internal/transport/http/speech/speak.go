package speech

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"odiadev-tts-server-go/internal/app/services"
	platformerrors "odiadev-tts-server-go/internal/platform/errors"
)

type speakParams struct {
	Text   string `json:"text" form:"text"`
	Voice  string `json:"voice" form:"voice"`
	Format string `json:"format" form:"format"`
	APIKey string `json:"api_key" form:"api_key"`
}

// bindSpeak reads parameters from the query and, for POST, from a JSON or
// form body. Body values win over query values.
func bindSpeak(c *gin.Context) (speakParams, error) {
	var params speakParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return params, err
	}
	if c.Request.Method != http.MethodPost || c.Request.ContentLength == 0 {
		return params, nil
	}

	var body speakParams
	var err error
	if strings.HasPrefix(c.ContentType(), binding.MIMEJSON) {
		err = c.ShouldBindJSON(&body)
	} else {
		err = c.ShouldBind(&body)
	}
	if err != nil {
		return params, err
	}
	params.Text = firstNonEmpty(body.Text, params.Text)
	params.Voice = firstNonEmpty(body.Voice, params.Voice)
	params.Format = firstNonEmpty(body.Format, params.Format)
	params.APIKey = firstNonEmpty(body.APIKey, params.APIKey)
	return params, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// handleSpeak synthesizes speech.
// @Summary Text to speech
// @Tags Speech
// @Produce audio/wav,audio/mpeg,json
// @Param text query string true "Text to speak"
// @Param voice query string false "Voice ID"
// @Param format query string false "wav or mp3"
// @Param api_key query string false "API key"
// @Success 200 {file} binary
// @Failure 400 {object} httptransport.APIResponse
// @Router /speak [get]
func (s *Service) handleSpeak(c *gin.Context) {
	params, err := bindSpeak(c)
	if err != nil {
		s.respondError(c, platformerrors.Reclassify(platformerrors.KindInvalidRequest, "speech.bind", "malformed request body", err))
		return
	}

	s.speak(c, services.SpeakRequest{
		Text:    params.Text,
		VoiceID: params.Voice,
		Format:  params.Format,
		APIKey:  apiKey(c, params.APIKey),
	}, "")
}

// handleTest speaks a fixed sentence with the default voice and key.
// @Summary Speak a fixed test sentence
// @Tags Speech
// @Produce audio/wav
// @Router /test [get]
func (s *Service) handleTest(c *gin.Context) {
	s.speak(c, services.SpeakRequest{
		Text:    testSentence,
		VoiceID: s.speech.DefaultVoice(),
		Format:  "wav",
		APIKey:  apiKey(c, c.Query("api_key")),
	}, "test")
}

func (s *Service) speak(c *gin.Context, req services.SpeakRequest, filename string) {
	res, err := s.speech.Speak(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}

	if filename == "" {
		filename = "speech_" + res.Fingerprint.Short()
	}
	c.Header("X-Request-Id", res.RequestID)
	c.Header("X-Voice-Used", res.Voice.ID)
	c.Header("X-Characters-Processed", strconv.Itoa(res.Characters))
	c.Header("X-Cached", strconv.FormatBool(res.Cached()))
	c.Header("X-Audio-Size", strconv.Itoa(len(res.Audio)))
	c.Header("X-API-Tier", res.Tier)
	c.Header("X-Fingerprint", res.Fingerprint.String())
	c.Header("X-Engine-Attempts", strconv.Itoa(res.Attempts))
	c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", int(s.clientCacheAge.Seconds())))
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s.%s"`, filename, res.Format.Extension()))
	c.Data(http.StatusOK, res.Format.ContentType(), res.Audio)
}
