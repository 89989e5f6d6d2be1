// Package imgload loads images for interactive applications.
//
// A [Downloader] fetches an image for a key (usually a URL), decodes it and
// delivers it to a [Target], such as a grid cell or list row, that may be
// recycled at any time. Decoded images are kept in a two-tier in-memory
// cache: a bounded LRU hot tier and a warm tier of weak pointers that the
// garbage collector may reclaim.
//
// Each target carries a [Binding] naming the download that currently owns
// it. Starting a new download for a target supersedes the previous one, and
// a completed download is applied only if its binding is still current, so a
// slow, stale response never overwrites a newer image.
//
// # Quick Start
//
// Every target mutation happens on the [Scheduler] given to [New]. A [Loop]
// is the simplest one:
//
//	loop := imgload.NewLoop()
//	d, err := imgload.New(loop)
//	if err != nil {
//	    return err
//	}
//	defer d.Close()
//
//	slot := &imgload.Slot{}
//	d.Download("https://example.com/cat.png", slot,
//	    imgload.WithProgress(func(percent int, elapsedMs int64) {
//	        fmt.Printf("%d%% after %dms\n", percent, elapsedMs)
//	    }),
//	)
//	go loop.Run(ctx)
//
// # Transports
//
// [DefaultTransport] serves http, https and oci keys. OCI keys name an image
// stored in a registry, either by digest (oci://ghcr.io/org/repo@sha256:...)
// or by tag (oci://ghcr.io/org/repo:v1), in which case the first image layer
// of the manifest is used.
//
// # Errors
//
// Failed downloads leave the target as it was and are logged with a [Kind].
// Use [Downloader.Load] for a synchronous fetch that returns the error.
package imgload
