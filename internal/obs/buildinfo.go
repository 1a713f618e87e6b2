package obs

import (
	"runtime"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Build identifies the running binary and the chart of accounts its
// journals post to.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
	Chart     string `json:"chart"`
}

// NewBuild stamps the runtime Go version. chart lists the fee, OVA and
// provider fee accounts in that order.
func NewBuild(version, commit string, chart ...string) Build {
	return Build{
		Version:   version,
		Commit:    commit,
		GoVersion: runtime.Version(),
		Chart:     strings.Join(chart, "/"),
	}
}

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fundsflow_build_info",
			Help: "Constant 1 labelled with the running build and its chart of accounts.",
		},
		[]string{"version", "commit", "go_version", "chart"},
	)
)

// InitBuildInfo registers fundsflow_build_info once and publishes b as the
// only series.
func InitBuildInfo(b Build) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.Reset()
	buildInfo.WithLabelValues(b.Version, b.Commit, b.GoVersion, b.Chart).Set(1)
}
