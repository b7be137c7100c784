package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/smazurov/procwatch/internal/version"
)

var buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "build_info",
	Help:      "Build metadata of the running binary; always 1",
}, []string{"version", "commit", "modified", "go_version"})

// SetBuildInfo publishes info as the single procwatch_build_info series.
func SetBuildInfo(info version.Info) {
	buildInfo.Reset()
	buildInfo.WithLabelValues(info.Version, info.GitCommit, strconv.FormatBool(info.Modified), info.GoVersion).Set(1)
}
