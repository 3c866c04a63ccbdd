package voice

// CaptureDevice is a microphone-like audio source. Start begins capture and
// delivers raw PCM chunks to the callback until Stop is called; Stop halts
// delivery and releases the underlying media tracks.
//
// A device is owned by exactly one recording session. The recorder guarantees
// Stop is called exactly once on every exit path.
type CaptureDevice interface {
	Start(onChunk func(pcm []byte)) error
	Stop() error
}

// OpenDevice acquires a fresh capture device. Acquisition can fail
// (permission denied, no device); the recorder surfaces that and stays idle.
type OpenDevice func() (CaptureDevice, error)
