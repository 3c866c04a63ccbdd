package voice

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-missionary-company/parley/pkg/logger"
)

func TestExecDeviceStreamsStdout(t *testing.T) {
	// printf then sleep keeps the process alive so Stop exercises the kill path
	open := NewExecDevice("sh", "-c", "printf 'pcm-bytes'; sleep 30")

	device, err := open()
	require.NoError(t, err)

	var mu sync.Mutex
	var captured bytes.Buffer
	require.NoError(t, device.Start(func(pcm []byte) {
		mu.Lock()
		captured.Write(pcm)
		mu.Unlock()
	}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return captured.String() == "pcm-bytes"
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, device.Stop())
	// Idempotent: the recorder may only call Stop once, but a second call
	// must not fail either
	assert.NoError(t, device.Stop())
}

func TestExecDeviceMissingBinary(t *testing.T) {
	open := NewExecDevice("parley-no-such-recorder")

	_, err := open()
	require.Error(t, err)
}

// teeDevice counts delivered bytes so tests can wait for capture to land
type teeDevice struct {
	CaptureDevice
	notify func(n int)
}

func (d *teeDevice) Start(onChunk func(pcm []byte)) error {
	return d.CaptureDevice.Start(func(pcm []byte) {
		d.notify(len(pcm))
		onChunk(pcm)
	})
}

func TestExecDeviceDrivesRecorder(t *testing.T) {
	inner := NewExecDevice("sh", "-c", "printf 'audio'; sleep 30")

	var mu sync.Mutex
	var seen int
	open := func() (CaptureDevice, error) {
		device, err := inner()
		if err != nil {
			return nil, err
		}
		return &teeDevice{CaptureDevice: device, notify: func(n int) {
			mu.Lock()
			seen += n
			mu.Unlock()
		}}, nil
	}

	transcriber := fixedText("spoken words")
	recorder := NewRecorder(open, transcriber, 0, 16000, 1, logger.NewNop())

	require.NoError(t, recorder.Start())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen == len("audio")
	}, 5*time.Second, 10*time.Millisecond)

	text, err := recorder.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "spoken words", text)

	transcriber.mu.Lock()
	wav := transcriber.calls[0]
	transcriber.mu.Unlock()
	assert.Equal(t, []byte("audio"), wav[44:])
}
