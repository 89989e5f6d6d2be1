package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/meigma/imgload"
)

type result struct {
	key     string
	slot    *imgload.Slot
	elapsed time.Duration
}

// report prints one line per key and returns the number of keys that
// produced no image.
func report(w io.Writer, results []*result) int {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	failed := 0
	for _, r := range results {
		img := r.slot.Image()
		if img == nil {
			failed++
			fmt.Fprintf(tw, "%s\tFAILED\t\t\t\t\n", r.key)
			continue
		}

		dims := "-"
		if img.Image != nil {
			b := img.Bounds()
			dims = fmt.Sprintf("%dx%d", b.Dx(), b.Dy())
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.key,
			humanize.Bytes(uint64(img.Bytes)),
			img.Format,
			dims,
			shortDigest(img),
			elapsed(r),
		)
	}
	return failed
}

func shortDigest(img *imgload.Image) string {
	enc := img.Digest.Encoded()
	if len(enc) > 12 {
		return enc[:12]
	}
	if enc == "" {
		return "-"
	}
	return enc
}

// elapsed is only known when the source reported a length.
func elapsed(r *result) string {
	if r.elapsed <= 0 {
		return "-"
	}
	return r.elapsed.Round(time.Millisecond).String()
}
