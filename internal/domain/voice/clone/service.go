package clone

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"odiadev-tts-server-go/internal/domain/audio"
	"odiadev-tts-server-go/internal/domain/eventbus"
	"odiadev-tts-server-go/internal/domain/voice"
	platformerrors "odiadev-tts-server-go/internal/platform/errors"
	"odiadev-tts-server-go/internal/platform/logging"
	"odiadev-tts-server-go/internal/platform/observability"
	"odiadev-tts-server-go/internal/util/work"
)

var voiceIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// Config controls sample storage and the size of the worker pool.
type Config struct {
	SamplesDir     string
	MaxSampleBytes int64
	Workers        int
	DefaultVoice   string
}

// Service accepts clone uploads and trains them in the background.
type Service struct {
	cfg       Config
	trainer   Trainer
	registrar Registrar
	bus       eventbus.Bus
	metrics   *observability.Metrics
	logger    *logging.Logger

	mu   sync.RWMutex
	jobs map[string]*Job

	queue *work.WorkQueue[string]
}

// NewService creates the samples directory and starts the workers.
func NewService(
	cfg Config,
	trainer Trainer,
	registrar Registrar,
	bus eventbus.Bus,
	metrics *observability.Metrics,
	logger *logging.Logger,
) (*Service, error) {
	if trainer == nil || registrar == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "clone.NewService", "trainer and registrar are required")
	}
	if cfg.SamplesDir == "" {
		cfg.SamplesDir = "voice_samples"
	}
	if cfg.MaxSampleBytes <= 0 {
		cfg.MaxSampleBytes = 10 << 20
	}
	if err := os.MkdirAll(cfg.SamplesDir, 0o755); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "clone.NewService", "failed to create samples dir", err)
	}

	s := &Service{
		cfg:       cfg,
		trainer:   trainer,
		registrar: registrar,
		bus:       bus,
		metrics:   metrics,
		logger:    logger,
		jobs:      make(map[string]*Job),
	}
	s.queue = work.NewWorkQueue[string](cfg.Workers, s.process,
		work.WithFailureHandler[string](func(jobID string, err error) {
			s.fail(jobID, err)
		}),
	)
	return s, nil
}

// Submit stores the sample and queues a training job. It returns as soon as
// the job is queued.
func (s *Service) Submit(ctx context.Context, req SubmitRequest, sample io.Reader) (Job, error) {
	const op = "clone.Submit"

	req.VoiceID = strings.TrimSpace(req.VoiceID)
	if !voiceIDPattern.MatchString(req.VoiceID) {
		return Job{}, platformerrors.New(platformerrors.KindInvalidRequest, op,
			"voice_id must be 1-64 letters, digits, '-' or '_'")
	}
	if existing, err := s.registrar.Resolve(req.VoiceID); err == nil && !existing.Cloned {
		return Job{}, platformerrors.New(platformerrors.KindConflict, op,
			fmt.Sprintf("voice_id %q belongs to a catalogue voice, choose another id", req.VoiceID))
	}

	base, err := s.baseVoice(req)
	if err != nil {
		return Job{}, err
	}

	path, size, err := s.saveSample(req, sample)
	if err != nil {
		return Job{}, err
	}

	job := &Job{
		ID:          uuid.NewString(),
		VoiceID:     req.VoiceID,
		BaseVoice:   base.ID,
		SamplePath:  path,
		SampleBytes: size,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	snapshot := *job
	s.mu.Unlock()

	if err := s.queue.Submit(job.ID, req.Priority); err != nil {
		s.mu.Lock()
		delete(s.jobs, job.ID)
		s.mu.Unlock()
		return Job{}, platformerrors.Wrap(platformerrors.KindServiceUnavailable, op, "clone queue is closed", err)
	}

	s.metrics.RecordCloneJob(string(StatusPending))
	s.publish(eventbus.EventCloneSubmitted, snapshot, "")
	s.logger.InfoTag("Clone", "queued clone job %s for voice %s (base %s, %d bytes)",
		job.ID, job.VoiceID, base.ID, size)
	return snapshot, nil
}

// Get returns a copy of the job.
func (s *Service) Get(jobID string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Pending reports how many jobs are queued or training.
func (s *Service) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, job := range s.jobs {
		if !job.Finished() {
			n++
		}
	}
	return n
}

// Wait blocks until all submitted jobs have finished. Used by tests.
func (s *Service) Wait() {
	s.queue.Wait()
}

// Close stops accepting jobs and waits for running ones until ctx expires.
func (s *Service) Close(ctx context.Context) error {
	return s.queue.Stop(ctx)
}

func (s *Service) baseVoice(req SubmitRequest) (voice.Profile, error) {
	baseID := strings.TrimSpace(req.BaseVoice)
	if baseID == "" {
		if existing, err := s.registrar.Resolve(req.VoiceID); err == nil {
			baseID = existing.ID
			if existing.BaseVoice != "" {
				baseID = existing.BaseVoice
			}
		} else {
			baseID = s.cfg.DefaultVoice
		}
	}
	base, err := s.registrar.Resolve(baseID)
	if err != nil {
		return voice.Profile{}, err
	}
	return base, nil
}

func (s *Service) saveSample(req SubmitRequest, sample io.Reader) (string, int64, error) {
	const op = "clone.saveSample"

	tmp, err := os.CreateTemp(s.cfg.SamplesDir, ".upload-*")
	if err != nil {
		return "", 0, platformerrors.Wrap(platformerrors.KindStorage, op, "failed to create sample file", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, io.LimitReader(sample, s.cfg.MaxSampleBytes+1))
	closeErr := tmp.Close()
	if err != nil {
		return "", 0, platformerrors.Wrap(platformerrors.KindStorage, op, "failed to store sample", err)
	}
	if closeErr != nil {
		return "", 0, platformerrors.Wrap(platformerrors.KindStorage, op, "failed to store sample", closeErr)
	}
	if written == 0 {
		return "", 0, platformerrors.New(platformerrors.KindInvalidRequest, op, "audio sample is empty")
	}
	if written > s.cfg.MaxSampleBytes {
		return "", 0, platformerrors.New(platformerrors.KindInvalidRequest, op,
			fmt.Sprintf("audio sample exceeds %d bytes", s.cfg.MaxSampleBytes))
	}

	format, err := s.sampleFormat(req.Filename, tmp.Name())
	if err != nil {
		return "", 0, err
	}

	final := filepath.Join(s.cfg.SamplesDir, fmt.Sprintf("%s_sample.%s", req.VoiceID, format.Extension()))
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", 0, platformerrors.Wrap(platformerrors.KindStorage, op, "failed to store sample", err)
	}
	return final, written, nil
}

// sampleFormat trusts the file content over the uploaded name.
func (s *Service) sampleFormat(filename, path string) (audio.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", platformerrors.Wrap(platformerrors.KindStorage, "clone.sampleFormat", "failed to read sample", err)
	}
	defer f.Close()

	head := make([]byte, 16)
	n, _ := io.ReadFull(f, head)
	if format, ok := audio.Sniff(head[:n]); ok {
		return format, nil
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	return "", platformerrors.New(platformerrors.KindInvalidRequest, "clone.sampleFormat",
		fmt.Sprintf("unsupported audio sample %q, upload wav or mp3", ext))
}

func (s *Service) process(ctx context.Context, jobID string) error {
	job, ok := s.transition(jobID, StatusTraining, "")
	if !ok {
		return nil
	}
	s.metrics.RecordCloneJob(string(StatusTraining))

	base, err := s.registrar.Resolve(job.BaseVoice)
	if err != nil {
		return err
	}

	profile, err := s.trainer.Train(ctx, TrainRequest{
		JobID:      job.ID,
		VoiceID:    job.VoiceID,
		Base:       base,
		SamplePath: job.SamplePath,
	})
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}
	profile.ID = job.VoiceID
	profile.Cloned = true
	profile.Revision = job.ID
	if profile.SamplePath == "" {
		profile.SamplePath = job.SamplePath
	}
	if profile.BaseVoice == "" {
		profile.BaseVoice = base.ID
	}

	if err := s.registrar.Register(ctx, profile); err != nil {
		return fmt.Errorf("register voice: %w", err)
	}

	done, _ := s.transition(jobID, StatusCompleted, "")
	s.metrics.RecordCloneJob(string(StatusCompleted))
	s.publish(eventbus.EventCloneCompleted, done, profile.EngineVoice)
	if s.bus != nil {
		s.bus.PublishAsync(eventbus.EventVoiceRegistered, eventbus.VoiceEventData{VoiceID: profile.ID, Cloned: true})
	}
	s.logger.InfoTag("Clone", "clone job %s completed, voice %s registered", job.ID, job.VoiceID)
	return nil
}

func (s *Service) fail(jobID string, err error) {
	msg := err.Error()
	if errors.Is(err, context.Canceled) {
		msg = "service shutting down"
	}
	job, ok := s.transition(jobID, StatusFailed, msg)
	if !ok {
		return
	}
	s.metrics.RecordCloneJob(string(StatusFailed))
	s.publish(eventbus.EventCloneFailed, job, "")
	s.logger.WarnTag("Clone", "clone job %s for voice %s failed: %v", job.ID, job.VoiceID, err)
}

// transition moves a job to status and returns a copy. It refuses to move a
// job out of a terminal state.
func (s *Service) transition(jobID string, status Status, errMsg string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Finished() {
		return Job{}, false
	}
	job.Status = status
	job.Error = errMsg
	if job.Finished() {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	return *job, true
}

func (s *Service) publish(topic string, job Job, engineVoice string) {
	if s.bus == nil {
		return
	}
	s.bus.PublishAsync(topic, eventbus.CloneEventData{
		JobID:       job.ID,
		VoiceID:     job.VoiceID,
		BaseVoice:   job.BaseVoice,
		EngineVoice: engineVoice,
		SamplePath:  job.SamplePath,
		Error:       job.Error,
		At:          time.Now().UTC(),
	})
}
