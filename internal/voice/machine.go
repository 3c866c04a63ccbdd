package voice

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/the-missionary-company/parley/pkg/logger"
)

// Phase is the recorder state machine position
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRecording
	PhaseTranscribing
)

// String returns the phase name
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRecording:
		return "recording"
	case PhaseTranscribing:
		return "transcribing"
	default:
		return "unknown"
	}
}

// ErrNotIdle is returned when Start is called while a session is active
var ErrNotIdle = errors.New("recorder is not idle")

// DefaultMaxRecording is the recording time ceiling
const DefaultMaxRecording = 600 * time.Second

// session is the state owned by one recording: the chunk buffer, the capture
// device, and the auto-stop timer. Chunks never outlive their session.
type session struct {
	startedAt      time.Time
	chunks         [][]byte
	device         CaptureDevice
	deviceReleased bool
	timer          *time.Timer
}

// Recorder coordinates the microphone capture lifecycle, the recording time
// budget, and a cancellable transcription round-trip.
//
// Phases: IDLE -> RECORDING -> TRANSCRIBING -> IDLE, with cancellation
// reachable from RECORDING and TRANSCRIBING. Every exit path releases the
// device exactly once and clears the chunk buffer. Each transcription
// attempt gets a fresh cancellation token; starting a new recording
// invalidates the previous one, so a stale cancel never touches the new
// attempt.
type Recorder struct {
	open        OpenDevice
	transcriber Transcriber
	maxDuration time.Duration
	sampleRate  int
	channels    int
	logger      *logger.Logger

	// OnTranscript, when set, receives the finalized transcript after a
	// successful stop. It is never called with empty text. The auto-stop
	// path invokes it from the timer goroutine.
	OnTranscript func(text string)

	mu               sync.Mutex
	phase            Phase
	sess             *session
	attempt          uint64
	cancelTranscribe context.CancelFunc
}

// NewRecorder creates a recorder. maxDuration <= 0 selects the default
// ceiling.
func NewRecorder(open OpenDevice, transcriber Transcriber, maxDuration time.Duration, sampleRate, channels int, log *logger.Logger) *Recorder {
	if maxDuration <= 0 {
		maxDuration = DefaultMaxRecording
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}
	return &Recorder{
		open:        open,
		transcriber: transcriber,
		maxDuration: maxDuration,
		sampleRate:  sampleRate,
		channels:    channels,
		logger:      log.Named("voice-recorder"),
	}
}

// Phase returns the current phase
func (r *Recorder) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Elapsed returns how long the current recording has been running
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == nil || r.phase != PhaseRecording {
		return 0
	}
	return time.Since(r.sess.startedAt)
}

// Start acquires the capture device and begins recording. Failure to acquire
// leaves the recorder idle with no half-open device handle.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseIdle {
		return ErrNotIdle
	}

	// A new recording invalidates any token from a previous attempt
	r.attempt++

	device, err := r.open()
	if err != nil {
		r.logger.Error("Failed to acquire capture device", logger.Error(err))
		return err
	}

	sess := &session{
		startedAt: time.Now(),
		device:    device,
	}

	if err := device.Start(func(pcm []byte) {
		r.appendChunk(sess, pcm)
	}); err != nil {
		// The device was acquired but capture never began; release it now
		r.releaseDevice(sess)
		r.logger.Error("Failed to start capture", logger.Error(err))
		return err
	}

	sess.timer = time.AfterFunc(r.maxDuration, func() {
		r.autoStop(sess)
	})

	r.sess = sess
	r.phase = PhaseRecording

	r.logger.Debug("Recording started",
		logger.Duration("max_duration", r.maxDuration))

	return nil
}

// appendChunk buffers one captured PCM chunk. Chunks arriving after the
// session ended are dropped; the device is already released by then.
func (r *Recorder) appendChunk(sess *session, pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess != sess || r.phase != PhaseRecording {
		return
	}
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	sess.chunks = append(sess.chunks, buf)
}

// autoStop is the time-ceiling transition; it behaves exactly like a manual
// stop
func (r *Recorder) autoStop(sess *session) {
	r.mu.Lock()
	active := r.sess == sess && r.phase == PhaseRecording
	r.mu.Unlock()
	if !active {
		return
	}
	r.logger.Debug("Recording time ceiling reached, stopping")
	if _, err := r.Stop(context.Background()); err != nil {
		r.logger.Error("Auto-stop transcription failed", logger.Error(err))
	}
}

// Stop finalizes the recording and transcribes the captured audio. With zero
// bytes captured no network call is made and the recorder returns directly to
// idle. Stop while not recording is a no-op. On success the transcript is
// returned and handed to OnTranscript; failures are logged, cleanup still
// runs, and the recorder is idle again.
func (r *Recorder) Stop(ctx context.Context) (string, error) {
	r.mu.Lock()

	if r.phase != PhaseRecording {
		r.mu.Unlock()
		return "", nil
	}

	sess := r.sess
	sess.timer.Stop()
	r.releaseDevice(sess)

	var size int
	for _, chunk := range sess.chunks {
		size += len(chunk)
	}

	if size == 0 {
		sess.chunks = nil
		r.sess = nil
		r.phase = PhaseIdle
		r.mu.Unlock()
		r.logger.Debug("No audio captured, skipping transcription")
		return "", nil
	}

	pcm := make([]byte, 0, size)
	for _, chunk := range sess.chunks {
		pcm = append(pcm, chunk...)
	}
	sess.chunks = nil

	wav := EncodeWAV(pcm, r.sampleRate, r.channels)

	// Fresh cancellation token for this attempt, the only one honored
	r.attempt++
	attempt := r.attempt
	transcribeCtx, cancel := context.WithCancel(ctx)
	r.cancelTranscribe = cancel
	r.phase = PhaseTranscribing
	r.mu.Unlock()

	r.logger.Debug("Transcribing recording",
		logger.Int("bytes", len(wav)),
		logger.Duration("duration", time.Since(sess.startedAt)))

	text, err := r.transcriber.Transcribe(transcribeCtx, wav)
	cancel()

	r.mu.Lock()
	if r.attempt != attempt {
		// Superseded by a cancel or a newer recording; that state is no
		// longer ours to touch
		r.mu.Unlock()
		return "", nil
	}
	r.cancelTranscribe = nil
	r.sess = nil
	r.phase = PhaseIdle
	r.mu.Unlock()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", nil
		}
		r.logger.Error("Transcription failed", logger.Error(err))
		return "", err
	}

	if text != "" && r.OnTranscript != nil {
		r.OnTranscript(text)
	}
	return text, nil
}

// Cancel aborts the current recording or transcription. The teardown order
// matters: the in-flight network call is cancelled first, then the device is
// released, then buffered audio is discarded. Cancel while idle is a no-op
// and touches no device.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.phase {
	case PhaseIdle:
		return

	case PhaseRecording:
		sess := r.sess
		sess.timer.Stop()
		r.releaseDevice(sess)
		sess.chunks = nil
		r.sess = nil
		r.attempt++
		r.phase = PhaseIdle
		r.logger.Debug("Recording cancelled")

	case PhaseTranscribing:
		if r.cancelTranscribe != nil {
			r.cancelTranscribe()
			r.cancelTranscribe = nil
		}
		// Device and chunks were already torn down when recording stopped
		r.sess = nil
		r.attempt++
		r.phase = PhaseIdle
		r.logger.Debug("Transcription cancelled")
	}
}

// releaseDevice stops the device's media tracks exactly once
func (r *Recorder) releaseDevice(sess *session) {
	if sess.deviceReleased {
		return
	}
	sess.deviceReleased = true
	if err := sess.device.Stop(); err != nil {
		r.logger.Error("Failed to release capture device", logger.Error(err))
	}
}
