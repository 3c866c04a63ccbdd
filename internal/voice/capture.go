package voice

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// ExecDevice captures PCM by running an external recorder command and
// streaming its stdout. The default command is ALSA's arecord emitting raw
// 16-bit little-endian samples; any program that writes PCM to stdout works.
type ExecDevice struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	done   chan struct{}

	mu      sync.Mutex
	stopped bool
}

// NewExecDevice returns an OpenDevice that launches the given command for
// each recording session
func NewExecDevice(name string, args ...string) OpenDevice {
	return func() (CaptureDevice, error) {
		cmd := exec.Command(name, args...)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to open capture pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("failed to start capture command: %w", err)
		}
		return &ExecDevice{
			cmd:    cmd,
			stdout: stdout,
			done:   make(chan struct{}),
		}, nil
	}
}

// DefaultExecDevice records from the default microphone via arecord with the
// given sample rate and channel count
func DefaultExecDevice(sampleRate, channels int) OpenDevice {
	return NewExecDevice("arecord",
		"-q",
		"-t", "raw",
		"-f", "S16_LE",
		"-r", fmt.Sprint(sampleRate),
		"-c", fmt.Sprint(channels),
	)
}

// Start pumps the command's stdout to the chunk callback until the process
// exits or the device is stopped
func (d *ExecDevice) Start(onChunk func(pcm []byte)) error {
	go func() {
		defer close(d.done)
		buf := make([]byte, 4*1024)
		for {
			n, err := d.stdout.Read(buf)
			if n > 0 {
				onChunk(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()
	return nil
}

// Stop kills the recorder process and waits for chunk delivery to drain
func (d *ExecDevice) Stop() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	d.mu.Unlock()

	if err := d.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("failed to stop capture command: %w", err)
	}
	<-d.done
	// The process was killed; its exit status is not an error here
	_ = d.cmd.Wait()
	return nil
}
