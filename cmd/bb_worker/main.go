package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/buildbarn/bb-file-cache/pkg/filesystem/cas"
	cas_configuration "github.com/buildbarn/bb-file-cache/pkg/filesystem/cas/configuration"
	"github.com/buildbarn/bb-file-cache/pkg/program"
	"github.com/buildbarn/bb-file-cache/pkg/util"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// cacheStatsPollInterval is how often the health-reporting loop below
// polls FileCache.GetCacheStats to refresh the size/entry-count/
// directory-storage gauges, which (unlike the eviction counters) are
// otherwise never touched outside of that call.
const cacheStatsPollInterval = 10 * time.Second

// bb_worker: stand up a content-addressable file cache from a Jsonnet
// configuration file, run its startup rescan, and serve its
// Prometheus metrics until terminated.
//
// This is deliberately the entire program: the gRPC CAS front-end a
// real build worker would sit in front of this cache is out of scope
// (see SPEC_FULL.md §1), so there is nothing here to serve requests
// beyond the metrics endpoint itself.
func main() {
	program.RunMain(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
		if len(os.Args) != 2 {
			return status.Error(codes.InvalidArgument, "Usage: bb_worker bb_worker.jsonnet")
		}
		var configuration struct {
			FileCache         cas_configuration.FileCacheConfiguration `json:"fileCache"`
			HttpListenAddress string                                   `json:"httpListenAddress"`
		}
		if err := util.UnmarshalConfigurationFromFile(os.Args[1], &configuration); err != nil {
			return util.StatusWrapf(err, "Failed to read configuration from %s", os.Args[1])
		}

		fc, err := cas_configuration.NewFileCacheFromConfiguration(
			&configuration.FileCache,
			/* delegate = */ nil,
			util.DefaultErrorLogger,
			cas.Hooks{})
		if err != nil {
			return util.StatusWrap(err, "Failed to create file cache")
		}

		writeIdleReapInterval, err := configuration.FileCache.WriteIdleReapIntervalDuration()
		if err != nil {
			return util.StatusWrap(err, "Failed to parse write idle reap interval")
		}

		results, err := fc.Start(ctx, configuration.FileCache.SkipLoad, writeIdleReapInterval)
		if err != nil {
			return util.StatusWrap(err, "Failed to start file cache")
		}
		log.Printf(
			"File cache started: %d blobs (%d rejected), %d directories (%d rejected), %d bytes",
			results.BlobsLoaded, results.BlobsRejected,
			results.DirectoriesLoaded, results.DirectoriesRejected,
			results.SizeBytes)

		siblingsGroup.Go(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
			ticker := time.NewTicker(cacheStatsPollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					fc.GetCacheStats()
				}
			}
		})

		if configuration.HttpListenAddress != "" {
			router := http.NewServeMux()
			router.Handle("/metrics", promhttp.Handler())
			siblingsGroup.Go(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
				server := &http.Server{
					Addr:    configuration.HttpListenAddress,
					Handler: router,
				}
				go func() {
					<-ctx.Done()
					server.Close()
				}()
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return util.StatusWrap(err, "HTTP server failed")
				}
				return nil
			})
		}

		<-ctx.Done()
		return nil
	})
}
