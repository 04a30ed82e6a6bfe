package stream

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/rnplay/relay/internal/config"
	"github.com/rnplay/relay/internal/metrics"
)

const chunkBufSize = 32 * 1024

// Subscriber receives encoded chunks on C from the moment it subscribes.
// Chunks emitted before subscription are never replayed. A subscriber that
// falls behind loses chunks rather than stalling the pipeline.
type Subscriber struct {
	C chan []byte
}

// Pipeline owns the single encoder subprocess and fans its output out to
// every subscribed viewer. At most one encoder runs at a time; the state
// machine is idle (enc == nil) or running.
type Pipeline struct {
	cfg     config.EncoderConfig
	metrics metrics.Collector

	mu   sync.Mutex
	enc  *encoder
	gen  uint64
	subs map[*Subscriber]struct{}
}

type encoder struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	gen   uint64
}

func NewPipeline(cfg config.EncoderConfig, m metrics.Collector) *Pipeline {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Pipeline{
		cfg:     cfg,
		metrics: m,
		subs:    make(map[*Subscriber]struct{}),
	}
}

// Running reports whether an encoder subprocess is currently live.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc != nil
}

// PushFrame feeds one still image to the encoder, spawning it first if the
// pipeline is idle. A frame that cannot be written is dropped; the caller
// only learns of the failure through the returned error and may ignore it.
func (p *Pipeline) PushFrame(frame []byte) error {
	p.mu.Lock()
	if p.enc == nil {
		enc, err := p.spawn()
		if err != nil {
			p.mu.Unlock()
			log.Error().Err(err).Str("module", "stream").Msg("encoder spawn failed, dropping frame")
			return err
		}
		p.enc = enc
	}
	enc := p.enc
	p.mu.Unlock()

	if _, err := enc.stdin.Write(frame); err != nil {
		log.Warn().Err(err).Str("module", "stream").Msg("frame write failed, dropping frame")
		return err
	}
	p.metrics.FrameReceived(len(frame))
	return nil
}

// Stop signals end-of-input and asks the encoder to terminate. The
// pipeline is idle immediately; the subprocess exit is reaped by the
// output reader.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	enc := p.enc
	p.enc = nil
	p.mu.Unlock()
	if enc == nil {
		return
	}

	log.Info().Str("module", "stream").Msg("stopping encoder")
	_ = enc.stdin.Close()
	if enc.cmd.Process != nil {
		_ = enc.cmd.Process.Signal(syscall.SIGTERM)
	}
}

// Subscribe adds a viewer sink. Subscribing never starts the encoder.
func (p *Pipeline) Subscribe() *Subscriber {
	sub := &Subscriber{C: make(chan []byte, 32)}
	p.mu.Lock()
	p.subs[sub] = struct{}{}
	p.mu.Unlock()
	p.metrics.ViewerSubscribed()
	return sub
}

// Unsubscribe removes a viewer sink and closes its channel.
func (p *Pipeline) Unsubscribe(sub *Subscriber) {
	p.mu.Lock()
	_, ok := p.subs[sub]
	delete(p.subs, sub)
	p.mu.Unlock()
	if ok {
		close(sub.C)
		p.metrics.ViewerUnsubscribed()
	}
}

// Viewers returns the current subscriber count.
func (p *Pipeline) Viewers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// spawn starts the encoder subprocess. Caller holds p.mu.
func (p *Pipeline) spawn() (*encoder, error) {
	p.gen++
	gen := p.gen

	cmd := exec.Command(p.cfg.Command, p.args()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("encoder stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("encoder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("encoder start: %w", err)
	}

	enc := &encoder{cmd: cmd, stdin: stdin, gen: gen}
	log.Info().Str("module", "stream").Str("command", p.cfg.Command).Int("pid", cmd.Process.Pid).Msg("encoder started")

	go p.readOutput(enc, stdout)
	return enc, nil
}

// args builds the frames-in, motion-stream-out invocation. The defaults
// reproduce: -f image2pipe -r 10 -i pipe:0 -vf scale=640:-2 -q:v 5
// -f mjpeg pipe:1. Zero-valued knobs are omitted so tests can point the
// pipeline at a plain pass-through command.
func (p *Pipeline) args() []string {
	if p.cfg.FrameRate == 0 && p.cfg.ScaleWidth == 0 && p.cfg.Quality == 0 {
		return nil
	}
	return []string{
		"-f", "image2pipe",
		"-r", fmt.Sprintf("%d", p.cfg.FrameRate),
		"-i", "pipe:0",
		"-vf", fmt.Sprintf("scale=%d:-2", p.cfg.ScaleWidth),
		"-q:v", fmt.Sprintf("%d", p.cfg.Quality),
		"-f", "mjpeg",
		"pipe:1",
	}
}

// readOutput pumps encoder stdout to every subscriber until the
// subprocess exits, then clears the encoder handle so the next frame
// spawns a fresh one. A stale generation never clears a newer encoder.
func (p *Pipeline) readOutput(enc *encoder, stdout io.Reader) {
	buf := make([]byte, chunkBufSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.broadcast(chunk)
		}
		if err != nil {
			if err != io.EOF {
				log.Warn().Err(err).Str("module", "stream").Msg("encoder output read error")
			}
			break
		}
	}

	waitErr := enc.cmd.Wait()

	p.mu.Lock()
	if p.enc != nil && p.enc.gen == enc.gen {
		p.enc = nil
	}
	p.mu.Unlock()

	if waitErr != nil {
		log.Info().Err(waitErr).Str("module", "stream").Msg("encoder exited")
	} else {
		log.Info().Str("module", "stream").Msg("encoder exited")
	}
}

// broadcast writes one chunk to every current subscriber, in send order. A
// subscriber whose buffer is full is skipped, not unsubscribed; removal
// happens only through the viewer's own disconnect. The sends are
// non-blocking, so holding the lock here never stalls the pipeline, and it
// keeps an Unsubscribe from closing a channel mid-send.
func (p *Pipeline) broadcast(chunk []byte) {
	p.mu.Lock()
	viewers := len(p.subs)
	for sub := range p.subs {
		select {
		case sub.C <- chunk:
		default:
			log.Warn().Str("module", "stream").Msg("viewer behind, chunk skipped")
		}
	}
	p.mu.Unlock()
	p.metrics.ChunkBroadcast(len(chunk), viewers)
}
