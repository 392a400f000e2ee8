// Package capture reads camera frames through an ffmpeg pipe and hands
// the most recent one to the decision loop.
package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/your-org/facegate/internal/vision"
)

// Camera extracts JPEG frames from a capture device or stream using
// ffmpeg and publishes them into a Mailbox. A camera that fails to
// open is fatal to session start; no ticks run against it.
type Camera struct {
	device string
	fps    int
	width  int
	out    *Mailbox
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	cmd    *exec.Cmd
}

func NewCamera(device string, fps, width int, out *Mailbox, logger *slog.Logger) *Camera {
	if logger == nil {
		logger = slog.Default()
	}
	return &Camera{
		device: device,
		fps:    fps,
		width:  width,
		out:    out,
		logger: logger.With("component", "camera"),
	}
}

// Run starts ffmpeg and blocks until the context is cancelled or the
// stream ends. A start failure is returned before any frame is
// delivered.
func (c *Camera) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	defer cancel()

	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
	}

	switch {
	case strings.HasPrefix(c.device, "rtsp://") || strings.HasPrefix(c.device, "rtsps://"):
		args = append(args,
			"-rtsp_transport", "tcp",
			"-stimeout", "5000000",
			"-timeout", "5000000",
		)
	case strings.HasPrefix(c.device, "/dev/video"):
		args = append(args, "-f", "v4l2")
	}

	args = append(args,
		"-i", c.device,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-1", c.fps, c.width),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	c.mu.Lock()
	c.cmd = cmd
	c.mu.Unlock()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("cannot start camera %s: %w", c.device, err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			c.logger.Warn("ffmpeg stderr", "output", scanner.Text())
		}
	}()

	if err := c.readFrames(ctx, stdout); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read frames: %w", err)
	}

	return cmd.Wait()
}

// Stop terminates the ffmpeg process.
func (c *Camera) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
}

// readFrames scans the concatenated JPEG stream on stdout, decodes
// each frame, and publishes it. Tolerates a slow first frame while
// ffmpeg opens the device (up to 5 seconds).
func (c *Camera) readFrames(ctx context.Context, r io.Reader) error {
	reader := bufio.NewReaderSize(r, 512*1024)
	framesRead := 0
	const maxStartupRetries = 50
	startupRetries := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := findJPEGStart(reader)
		if err != nil {
			if err == io.EOF {
				if framesRead == 0 && startupRetries < maxStartupRetries {
					startupRetries++
					time.Sleep(100 * time.Millisecond)
					continue
				}
				if framesRead > 0 {
					return nil
				}
				return fmt.Errorf("no frames received from camera (waited %.1fs)", float64(startupRetries)*0.1)
			}
			return err
		}

		frameData, err := readUntilJPEGEnd(reader)
		if err != nil {
			if err == io.EOF && framesRead > 0 {
				return nil
			}
			return err
		}

		if len(frameData) == 0 {
			continue
		}
		framesRead++
		c.publish(frameData)
	}
}

func (c *Camera) publish(data []byte) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		c.logger.Warn("frame decode failed", "error", err)
		return
	}
	c.out.Put(&vision.Frame{
		Image:      img,
		JPEG:       data,
		CapturedAt: time.Now(),
	})
}

func findJPEGStart(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return err
		}
		if b == 0xD8 {
			return nil
		}
	}
}

func readUntilJPEGEnd(r *bufio.Reader) ([]byte, error) {
	data := []byte{0xFF, 0xD8}

	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)

		if b == 0xFF {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			data = append(data, next)
			if next == 0xD9 {
				return data, nil
			}
		}

		// Safety: max 10MB per frame
		if len(data) > 10*1024*1024 {
			return nil, fmt.Errorf("jpeg frame too large: %d bytes", len(data))
		}
	}
}
