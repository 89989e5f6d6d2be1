// Command imgload downloads images through an imgload.Downloader and prints
// a summary of each.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	flag "github.com/spf13/pflag"

	"github.com/meigma/imgload"
	"github.com/meigma/imgload/metrics"
	"github.com/meigma/imgload/transport"
	httptransport "github.com/meigma/imgload/transport/http"
	"github.com/meigma/imgload/transport/oci"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := parseFlags("imgload", args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}

	level := slog.LevelWarn
	if cfg.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	loop := imgload.NewLoop()
	d, err := imgload.New(loop,
		imgload.WithTransport(newTransport(cfg)),
		imgload.WithWorkers(cfg.workers),
		imgload.WithCapacity(cfg.capacity),
		imgload.WithProgressInterval(cfg.progressInterval),
		imgload.WithMaxBytes(cfg.maxBytes),
		imgload.WithLogger(logger),
	)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	results := make([]*result, len(cfg.keys))
	for i, key := range cfg.keys {
		r := &result{key: key, slot: &imgload.Slot{}}
		results[i] = r
		d.Download(key, r.slot, imgload.WithProgress(func(percent int, elapsedMs int64) {
			r.elapsed = time.Duration(elapsedMs) * time.Millisecond
			if percent < 100 {
				fmt.Fprintf(stderr, "%s: %d%%\n", key, percent)
			}
		}))
	}

	if err := wait(ctx, loop, d); err != nil {
		logger.Warn("giving up on pending downloads", slog.Any("error", err))
	}

	failed := report(stdout, results)

	if cfg.metrics {
		if err := writeMetrics(stdout, d); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	}
	if failed > 0 {
		return 1
	}
	return 0
}

func newTransport(cfg config) *transport.Mux {
	httpOpts := []httptransport.Option{
		httptransport.WithClient(newHTTPClient(cfg)),
		httptransport.WithUserAgent(cfg.userAgent),
	}
	ociOpts := []oci.Option{
		oci.WithPlainHTTP(cfg.plainHTTP),
		oci.WithUserAgent(cfg.userAgent),
	}
	if cfg.dockerConfig {
		ociOpts = append(ociOpts, oci.WithDockerConfig())
	}
	return transport.NewMux(httptransport.New(httpOpts...), oci.New(ociOpts...))
}

// wait runs the loop on the calling goroutine until no download is in flight.
func wait(ctx context.Context, loop *imgload.Loop, d *imgload.Downloader) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		loop.Drain()
		if d.Stats().InFlight == 0 && loop.Len() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func writeMetrics(w io.Writer, d *imgload.Downloader) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(metrics.NewCollector(d)); err != nil {
		return err
	}
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
