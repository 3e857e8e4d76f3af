// Package configuration loads a FileCacheConfiguration from a Jsonnet
// file and constructs a ready-to-start cas.FileCache from it, the same
// two-step "unmarshal, then build" convention the teacher uses
// throughout its cmd/* entry points.
package configuration

import (
	"fmt"
	"time"

	remoteexecution "github.com/bazelbuild/remote-apis/build/bazel/remote/execution/v2"

	"github.com/buildbarn/bb-file-cache/pkg/clock"
	"github.com/buildbarn/bb-file-cache/pkg/digest"
	"github.com/buildbarn/bb-file-cache/pkg/filesystem/cas"
	"github.com/buildbarn/bb-file-cache/pkg/util"
)

// DirectoriesIndexConfiguration selects and configures one of the
// three DirectoriesIndex backends.
type DirectoriesIndexConfiguration struct {
	// Backend is one of "memory", "file", or "sqlite".
	Backend string `json:"backend"`
	// DatabasePath is used by the "sqlite" backend. A relative path
	// is resolved against the cache root. Use ":memory:" for a
	// purely in-process database.
	DatabasePath string `json:"databasePath"`
}

// FileCacheConfiguration holds the settings that
// NewFileCacheFromConfiguration reads. The delegate, error logger and
// hooks are not part of it; they are passed to that function directly.
type FileCacheConfiguration struct {
	// Name identifies this cache instance in its Prometheus metrics.
	Name string `json:"name"`
	// Root is the filesystem path the cache is rooted at.
	Root string `json:"root"`
	// MaxSizeBytes is the global size budget enforced through LRU
	// eviction.
	MaxSizeBytes int64 `json:"maxSizeBytes"`
	// MaxEntrySizeBytes bounds the size of any single blob this
	// cache will store.
	MaxEntrySizeBytes int64 `json:"maxEntrySizeBytes"`
	// DigestFunction names a REv2 digest function, e.g. "SHA256".
	DigestFunction string `json:"digestFunction"`
	// InstanceName is the REv2 instance name digests in this cache
	// are scoped to.
	InstanceName string `json:"instanceName"`
	// DirectoriesIndex selects the secondary index backend.
	DirectoriesIndex DirectoriesIndexConfiguration `json:"directoriesIndex"`
	// WriteIdleReapInterval controls how often the idle-write reaper
	// sweeps the write registry (e.g. "1m"). Disabled if zero/empty.
	WriteIdleReapInterval string `json:"writeIdleReapInterval"`
	// SkipLoad, if true, wipes and recreates an empty root at
	// startup instead of performing the rescan.
	SkipLoad bool `json:"skipLoad"`
}

var directoriesIndexBackends = map[string]cas.DirectoriesIndexBackend{
	"memory": cas.DirectoriesIndexMemory,
	"file":   cas.DirectoriesIndexFile,
	"sqlite": cas.DirectoriesIndexSQLite,
}

// NewFileCacheFromConfiguration constructs a digest.Function,
// DirectoriesIndex, and cas.FileCache from configuration, but does not
// start it -- the caller is expected to call Start() once, typically
// from a program.Routine.
func NewFileCacheFromConfiguration(configuration *FileCacheConfiguration, delegate cas.Delegate, errorLogger util.ErrorLogger, hooks cas.Hooks) (*cas.FileCache, error) {
	if configuration.MaxSizeBytes <= 0 {
		return nil, fmt.Errorf("maxSizeBytes must be positive")
	}
	if configuration.MaxEntrySizeBytes <= 0 || configuration.MaxEntrySizeBytes > configuration.MaxSizeBytes {
		return nil, fmt.Errorf("maxEntrySizeBytes must be positive and not exceed maxSizeBytes")
	}

	enumValue, ok := remoteexecution.DigestFunction_Value_value[configuration.DigestFunction]
	if !ok {
		return nil, fmt.Errorf("unknown digest function %q", configuration.DigestFunction)
	}
	instanceName, err := digest.NewInstanceName(configuration.InstanceName)
	if err != nil {
		return nil, util.StatusWrapf(err, "invalid instance name %#v", configuration.InstanceName)
	}
	digestFunction, err := instanceName.GetDigestFunction(remoteexecution.DigestFunction_Value(enumValue), 0)
	if err != nil {
		return nil, util.StatusWrap(err, "failed to construct digest function")
	}

	backend, ok := directoriesIndexBackends[configuration.DirectoriesIndex.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown directories index backend %q", configuration.DirectoriesIndex.Backend)
	}
	directoriesIndex, err := cas.NewDirectoriesIndex(backend, configuration.Root, configuration.DirectoriesIndex.DatabasePath)
	if err != nil {
		return nil, util.StatusWrap(err, "failed to construct directories index")
	}

	return cas.NewFileCache(
		configuration.Name,
		configuration.Root,
		digestFunction,
		configuration.MaxSizeBytes,
		configuration.MaxEntrySizeBytes,
		directoriesIndex,
		delegate,
		clock.SystemClock,
		errorLogger,
		hooks,
	), nil
}

// WriteIdleReapIntervalDuration parses WriteIdleReapInterval, treating
// an empty string as "disabled" (a zero Duration).
func (c *FileCacheConfiguration) WriteIdleReapIntervalDuration() (time.Duration, error) {
	if c.WriteIdleReapInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(c.WriteIdleReapInterval)
}
