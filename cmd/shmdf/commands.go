package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sugawarayuuta/sonnet"
	"golang.org/x/sync/errgroup"

	"gosuda.org/shmdf"
	"gosuda.org/shmdf/sample"
)

type frameFlags struct {
	width  int
	height int
	format string
	fps    float64
}

func (f *frameFlags) register(fs *flag.FlagSet) {
	fs.IntVar(&f.width, "width", 640, "frame width in pixels")
	fs.IntVar(&f.height, "height", 480, "frame height in pixels")
	fs.StringVar(&f.format, "format", "bgr24", "pixel format: gray8, bgr24, rgb24, bgra32")
	fs.Float64Var(&f.fps, "fps", 30, "frames per second (0 = as fast as consumers read)")
}

// producer publishes synthetic frames to a bound sink.
type producer struct {
	sink   *shmdf.Sink[sample.Frame]
	header sample.Frame
	pixels []byte
	period time.Duration
}

func newProducer(sink *shmdf.Sink[sample.Frame], f frameFlags) (*producer, error) {
	format, err := sample.ParsePixelFormat(f.format)
	if err != nil {
		return nil, err
	}

	p := &producer{sink: sink, header: sample.NewFrame(f.width, f.height, format)}
	if f.fps > 0 {
		p.period = time.Duration(float64(time.Second) / f.fps)
		p.header.Period = int64(p.period)
	}
	p.pixels = make([]byte, p.header.Size())

	if err := p.header.Validate(p.pixels); err != nil {
		return nil, err
	}
	return p, nil
}

// run publishes count frames, or until ctx is done when count is zero.
func (p *producer) run(ctx context.Context, count uint64) error {
	stop := context.AfterFunc(ctx, p.sink.NotifySelf)
	defer stop()

	var tick <-chan time.Time
	if p.period > 0 {
		ticker := time.NewTicker(p.period)
		defer ticker.Stop()
		tick = ticker.C
	}

	for n := uint64(1); count == 0 || n <= count; n++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}

		p.header.SampleNumber = n
		p.header.Timestamp = time.Now().UnixNano()
		for i := range p.pixels {
			p.pixels[i] = byte(n) + byte(i)
		}

		if err := p.sink.SetValueData(p.header, p.pixels); err != nil {
			if errors.Is(err, shmdf.ErrShutdown) {
				return ctx.Err()
			}
			return err
		}
		slog.Debug("frame published", "sample", n, "sources", p.sink.SourceRefCount())
	}
	return nil
}

func runProduce(ctx context.Context, fs *flag.FlagSet, args []string, common *commonFlags) error {
	var (
		name  = fs.String("name", "", "segment name (required)")
		count = fs.Uint64("count", 0, "frames to publish (0 = until interrupted)")
		ff    frameFlags
	)
	ff.register(fs)
	if err := parse(fs, args, common); err != nil {
		return err
	}
	if _, err := requireName(*name); err != nil {
		return err
	}

	sink, err := shmdf.Bind[sample.Frame](*name, common.options()...)
	if err != nil {
		return err
	}
	defer sink.Close()

	p, err := newProducer(sink, ff)
	if err != nil {
		return err
	}

	slog.Info("producing",
		"segment", *name,
		"width", ff.width,
		"height", ff.height,
		"format", ff.format,
		"fps", ff.fps,
	)
	return p.run(ctx, *count)
}

// consumer reads frames from a source and tracks missed samples.
type consumer struct {
	src    *shmdf.Source[sample.Frame]
	pixels []byte
	frames uint64
	missed uint64
}

// run reads count frames, or until the sink closes or ctx is done when count
// is zero.
func (c *consumer) run(ctx context.Context, count uint64, timeout time.Duration) error {
	stop := context.AfterFunc(ctx, c.src.NotifySelf)
	defer stop()

	log := slog.With("segment", c.src.Name(), "slot", c.src.Slot())
	last := uint64(0)
	for count == 0 || c.frames < count {
		frame, pixels, err := c.get(timeout)
		switch {
		case errors.Is(err, shmdf.ErrSinkClosed):
			log.Info("sink closed", "frames", c.frames, "missed", c.missed)
			return nil
		case errors.Is(err, shmdf.ErrTimeout):
			log.Info("no frame within timeout", "timeout", timeout, "frames", c.frames)
			return nil
		case errors.Is(err, shmdf.ErrShutdown):
			return ctx.Err()
		case err != nil:
			return err
		}
		c.pixels = pixels

		if err := frame.Validate(pixels); err != nil {
			return err
		}
		if last != 0 && frame.SampleNumber > last+1 {
			c.missed += frame.SampleNumber - last - 1
		}
		last = frame.SampleNumber
		c.frames++

		log.Debug("frame received",
			"sample", frame.SampleNumber,
			"cycle", c.src.SampleNumber(),
			"latency", time.Since(frame.Time()),
		)
	}

	log.Info("done", "frames", c.frames, "missed", c.missed)
	return nil
}

func (c *consumer) get(timeout time.Duration) (sample.Frame, []byte, error) {
	if timeout > 0 {
		return c.src.GetValueDataTimeout(c.pixels, timeout)
	}
	return c.src.GetValueData(c.pixels)
}

func runConsume(ctx context.Context, fs *flag.FlagSet, args []string, common *commonFlags) error {
	var (
		name    = fs.String("name", "", "segment name (required)")
		count   = fs.Uint64("count", 0, "frames to read (0 = until the producer exits)")
		timeout = fs.Duration("timeout", 0, "give up when no frame arrives within this long (0 = wait forever)")
	)
	if err := parse(fs, args, common); err != nil {
		return err
	}
	if _, err := requireName(*name); err != nil {
		return err
	}

	src, err := shmdf.Connect[sample.Frame](*name, common.options()...)
	if err != nil {
		return err
	}
	defer src.Close()

	c := &consumer{src: src}
	return c.run(ctx, *count, *timeout)
}

func runDemo(ctx context.Context, fs *flag.FlagSet, args []string, common *commonFlags) error {
	var (
		name      = fs.String("name", fmt.Sprintf("demo-%d", os.Getpid()), "segment name")
		consumers = fs.Int("consumers", 3, "number of consumers")
		frames    = fs.Uint64("frames", 100, "frames to publish")
		ff        frameFlags
	)
	ff.register(fs)
	if err := parse(fs, args, common); err != nil {
		return err
	}
	if *consumers < 1 || *consumers > shmdf.NumSlots {
		return fmt.Errorf("-consumers must be between 1 and %d", shmdf.NumSlots)
	}

	opts := common.options()
	sink, err := shmdf.Bind[sample.Frame](*name, opts...)
	if err != nil {
		return err
	}

	p, err := newProducer(sink, ff)
	if err != nil {
		sink.Close()
		return err
	}

	srcs := make([]*consumer, *consumers)
	for i := range srcs {
		src, err := shmdf.Connect[sample.Frame](*name, opts...)
		if err != nil {
			sink.Close()
			return err
		}
		defer src.Close()
		srcs[i] = &consumer{src: src}
	}

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer sink.Close()
		return p.run(ctx, *frames)
	})
	for _, c := range srcs {
		g.Go(func() error {
			return c.run(ctx, 0, 0)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	elapsed := time.Since(start)
	for _, c := range srcs {
		slog.Info("consumer finished",
			"slot", c.src.Slot(),
			"frames", c.frames,
			"missed", c.missed,
		)
	}
	slog.Info("demo finished",
		"frames", *frames,
		"elapsed", elapsed,
		"fps", float64(*frames)/elapsed.Seconds(),
	)
	return nil
}

func runInspect(ctx context.Context, fs *flag.FlagSet, args []string, common *commonFlags) error {
	name := fs.String("name", "", "segment name (required)")
	if err := parse(fs, args, common); err != nil {
		return err
	}
	if _, err := requireName(*name); err != nil {
		return err
	}

	snap, err := shmdf.Inspect(*name, common.options()...)
	if err != nil {
		return err
	}

	out, err := sonnet.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(os.Stdout, "%s\n", out)
	return err
}

func runRemove(ctx context.Context, fs *flag.FlagSet, args []string, common *commonFlags) error {
	name := fs.String("name", "", "segment name (required)")
	if err := parse(fs, args, common); err != nil {
		return err
	}
	if _, err := requireName(*name); err != nil {
		return err
	}
	if err := shmdf.Remove(*name, common.options()...); err != nil {
		return err
	}
	slog.Info("segment removed", "segment", *name)
	return nil
}
