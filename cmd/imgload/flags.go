package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"

	"github.com/meigma/imgload"
	"github.com/meigma/imgload/cache"
	httptransport "github.com/meigma/imgload/transport/http"
)

type config struct {
	keys []string

	workers          int
	capacity         int
	progressInterval time.Duration
	timeout          time.Duration
	maxBytes         int64

	plainHTTP    bool
	dockerConfig bool
	userAgent    string

	httpLatency time.Duration
	httpBPS     int64

	verbose bool
	metrics bool
}

var errNoKeys = errors.New("at least one key is required")

func parseFlags(name string, args []string) (config, error) {
	var cfg config
	var maxBytes, httpBPS string

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: %s [flags] KEY...\n\nKeys are http(s):// URLs or oci://registry/repo[:tag|@digest] references.\n\n", name)
		fs.PrintDefaults()
	}
	fs.IntVarP(&cfg.workers, "workers", "w", imgload.DefaultWorkers, "maximum concurrent fetches")
	fs.IntVar(&cfg.capacity, "capacity", cache.DefaultCapacity, "hot cache tier capacity")
	fs.DurationVar(&cfg.progressInterval, "progress-interval", imgload.DefaultProgressInterval, "minimum time between progress reports")
	fs.DurationVarP(&cfg.timeout, "timeout", "t", time.Minute, "overall time limit")
	fs.StringVar(&maxBytes, "max-bytes", "", "reject images larger than this (e.g. 20MB)")
	fs.BoolVar(&cfg.plainHTTP, "plain-http", false, "use plain HTTP for OCI registries")
	fs.BoolVar(&cfg.dockerConfig, "docker-config", false, "read registry credentials from the docker config")
	fs.StringVar(&cfg.userAgent, "user-agent", httptransport.DefaultUserAgent, "User-Agent for HTTP and registry requests")
	fs.DurationVar(&cfg.httpLatency, "http-latency", 0, "artificial latency added to each HTTP request")
	fs.StringVar(&httpBPS, "http-bps", "", "throttle HTTP bodies to this many bytes per second (e.g. 64KB)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "log debug output")
	fs.BoolVar(&cfg.metrics, "metrics", false, "print Prometheus metrics on exit")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if maxBytes != "" {
		n, err := humanize.ParseBytes(maxBytes)
		if err != nil {
			return config{}, fmt.Errorf("max-bytes: %w", err)
		}
		cfg.maxBytes = int64(n)
	}
	if httpBPS != "" {
		n, err := humanize.ParseBytes(httpBPS)
		if err != nil || n == 0 {
			return config{}, fmt.Errorf("http-bps: invalid value %q", httpBPS)
		}
		cfg.httpBPS = int64(n)
	}

	cfg.keys = fs.Args()
	if len(cfg.keys) == 0 {
		fs.Usage()
		return config{}, errNoKeys
	}
	return cfg, nil
}
