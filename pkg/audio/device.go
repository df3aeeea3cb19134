// Package audio captures the microphone and plays agent speech through the
// default PortAudio devices.
package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"voiceassistant/pkg/logging"
)

const (
	SampleRate   = 16000
	channelCount = 1

	// 250ms of input per chunk sent upstream.
	inputFrames = SampleRate / 4
	// 62.5ms per playback write so an interruption takes effect quickly.
	outputFrames = SampleRate / 16

	outputQueueSize = 256

	// Capture gives up after this many consecutive read failures.
	maxReadFailures = 20
)

// readRetryDelay is the pause after a failed read.
var readRetryDelay = 100 * time.Millisecond

var logger = logging.New("audio")

// Device is a full-duplex PortAudio device. It implements
// convai.AudioInterface and may be reused across sessions.
type Device struct {
	// Gain scales captured samples. Zero means 1.
	Gain float64

	mu      sync.Mutex
	running bool
	in      *portaudio.Stream
	out     *portaudio.Stream
	queue   chan []byte
	stop    chan struct{}
	wg      sync.WaitGroup

	// generation is bumped by Interrupt; playback abandons the chunk it is
	// writing when it changes.
	generation atomic.Uint64
}

// NewDevice initializes PortAudio.
func NewDevice() (*Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init error: %w", err)
	}
	return &Device{Gain: 1}, nil
}

// Close stops any running streams and releases PortAudio.
func (d *Device) Close() error {
	d.Stop()
	return portaudio.Terminate()
}

// Start opens the default input and output streams. input is called from
// the capture goroutine with each 250ms chunk of PCM16LE.
func (d *Device) Start(input func(pcm []byte)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("audio device already started")
	}

	inBuf := make([]int16, inputFrames)
	in, err := portaudio.OpenDefaultStream(channelCount, 0, SampleRate, len(inBuf), inBuf)
	if err != nil {
		return fmt.Errorf("failed to open input stream: %w", err)
	}
	outBuf := make([]int16, outputFrames)
	out, err := portaudio.OpenDefaultStream(0, channelCount, SampleRate, len(outBuf), outBuf)
	if err != nil {
		in.Close()
		return fmt.Errorf("failed to open output stream: %w", err)
	}

	if err := in.Start(); err != nil {
		in.Close()
		out.Close()
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	if err := out.Start(); err != nil {
		in.Stop()
		in.Close()
		out.Close()
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	d.in, d.out = in, out
	d.queue = make(chan []byte, outputQueueSize)
	d.stop = make(chan struct{})
	d.running = true

	d.wg.Add(2)
	go d.captureLoop(in.Read, inBuf, d.stop, input)
	go d.playbackLoop(out, outBuf, d.queue, d.stop)

	logger.Infof("Audio started (%d Hz mono)", SampleRate)
	return nil
}

// Output queues agent audio for playback. It blocks when the queue is full
// and drops the audio when the device is not running.
func (d *Device) Output(pcm []byte) {
	d.mu.Lock()
	queue, stop, running := d.queue, d.stop, d.running
	d.mu.Unlock()
	if !running {
		return
	}
	select {
	case queue <- pcm:
	case <-stop:
	}
}

// Interrupt discards queued playback and cuts the chunk being played.
func (d *Device) Interrupt() {
	d.generation.Add(1)

	d.mu.Lock()
	queue := d.queue
	d.mu.Unlock()
	if queue == nil {
		return
	}
	for {
		select {
		case <-queue:
		default:
			return
		}
	}
}

// Stop ends capture and playback and closes the streams. It is safe to call
// when not started.
func (d *Device) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stop)
	in, out := d.in, d.out
	d.in, d.out = nil, nil
	d.mu.Unlock()

	d.wg.Wait()

	in.Stop()
	in.Close()
	out.Stop()
	out.Close()
	logger.Infof("Audio stopped")
}

func (d *Device) captureLoop(read func() error, buf []int16, stop <-chan struct{}, input func([]byte)) {
	defer d.wg.Done()
	failures := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		if err := read(); err != nil && err != portaudio.InputOverflowed {
			failures++
			if failures >= maxReadFailures {
				logger.Errorf("Giving up on microphone after %d read errors: %v", failures, err)
				return
			}
			logger.Warnf("PortAudio read error: %v", err)
			select {
			case <-stop:
				return
			case <-time.After(readRetryDelay):
			}
			continue
		}
		failures = 0
		input(SamplesToBytes(ApplyGain(buf, d.Gain)))
	}
}

func (d *Device) playbackLoop(out *portaudio.Stream, buf []int16, queue <-chan []byte, stop <-chan struct{}) {
	defer d.wg.Done()
	for {
		select {
		case <-stop:
			return
		case pcm := <-queue:
			d.play(out, buf, BytesToSamples(pcm), stop)
		}
	}
}

func (d *Device) play(out *portaudio.Stream, buf []int16, samples []int16, stop <-chan struct{}) {
	gen := d.generation.Load()
	for len(samples) > 0 {
		select {
		case <-stop:
			return
		default:
		}
		if d.generation.Load() != gen {
			return
		}

		n := copy(buf, samples)
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		samples = samples[n:]

		if err := out.Write(); err != nil && err != portaudio.OutputUnderflowed {
			logger.Warnf("PortAudio write error: %v", err)
			return
		}
	}
}
