package merge

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	types "github.com/yungbote/samerge/internal/domain/merge"
)

// Stats counts what one invocation did. Counters live in a private registry
// so a cron run can export them as a node-exporter textfile.
type Stats struct {
	registry *prometheus.Registry

	FilesDiscovered  prometheus.Counter
	FilesSkipped     prometheus.Counter
	GroupsCreated    prometheus.Counter
	ItemsPlanned     prometheus.Counter
	Submissions      *prometheus.CounterVec
	Transitions      *prometheus.CounterVec
	Resets           *prometheus.CounterVec
	FilesCleaned     prometheus.Counter
	GroupsCollected  prometheus.Counter
	Items            *prometheus.GaugeVec
	LastRunTimestamp prometheus.Gauge
}

func NewStats() *Stats {
	s := &Stats{
		registry: prometheus.NewRegistry(),
		FilesDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "samerge_files_discovered_total",
			Help: "Catalog files added to the local store.",
		}),
		FilesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "samerge_files_skipped_total",
			Help: "Catalog files skipped during discovery because their metadata was unusable.",
		}),
		GroupsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "samerge_groups_created_total",
			Help: "Merge groups created.",
		}),
		ItemsPlanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "samerge_items_planned_total",
			Help: "Work items created by the planner.",
		}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "samerge_submissions_total",
			Help: "Submission attempts by result.",
		}, []string{"result"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "samerge_transitions_total",
			Help: "Persisted status changes.",
		}, []string{"from", "to"}),
		Resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "samerge_resets_total",
			Help: "Work items reset, by reason.",
		}, []string{"reason"}),
		FilesCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "samerge_files_cleaned_total",
			Help: "Unmerged files retired after their merged output reached tape.",
		}),
		GroupsCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "samerge_groups_collected_total",
			Help: "Empty merge groups deleted.",
		}),
		Items: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "samerge_items",
			Help: "Work items per status at the end of the run.",
		}, []string{"status"}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "samerge_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
	}
	s.registry.MustRegister(
		s.FilesDiscovered, s.FilesSkipped, s.GroupsCreated, s.ItemsPlanned,
		s.Submissions, s.Transitions, s.Resets, s.FilesCleaned,
		s.GroupsCollected, s.Items, s.LastRunTimestamp,
	)
	return s
}

func (s *Stats) Registry() *prometheus.Registry { return s.registry }

func (s *Stats) transition(from, to types.Status) {
	s.Transitions.WithLabelValues(from.String(), to.String()).Inc()
}

func (s *Stats) setItemCounts(counts map[types.Status]int64) {
	for _, st := range types.PollOrder {
		s.Items.WithLabelValues(st.String()).Set(float64(counts[st]))
	}
}

// WriteTextfile exports the registry atomically to path.
func (s *Stats) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, s.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
