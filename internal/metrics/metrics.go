// Package metrics instruments the components spec.md §2 lists with a
// "Share" column: story chains, read trackers, gap trackers, GC. It is the
// home for github.com/prometheus/client_golang in this repository, the way
// talent-plan-tinykv and FeatureBaseDB both instrument their storage
// engines.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set is a bundle of counters/gauges for one engine instance. It is not a
// package-level global so that multiple engine instances (e.g. in tests)
// don't collide on registration; callers that want process-wide metrics
// pass prometheus.DefaultRegisterer to New.
type Set struct {
	StoriesCreated       prometheus.Counter
	StoriesFreed         prometheus.Counter
	ReadTrackersUsed     prometheus.Counter
	GapTrackers          *prometheus.CounterVec // labeled by flavor: inplace|nearby|count|fullscan
	PointHoles           prometheus.Counter
	Demotions            prometheus.Counter // send_to_read_view invocations that changed rv_psn
	Aborts               prometheus.Counter
	GCSweeps             prometheus.Counter
	GCStoriesScanned     prometheus.Counter
	GCStoriesFreed       prometheus.Counter
	StoriesInUse         prometheus.Gauge
	StoryClassifications *prometheus.CounterVec // labeled by status: used|read_view|track_gap
}

// New builds a Set and registers it with reg. Passing a nil registerer
// skips registration, which is what unit tests that build many
// short-lived engines want.
func New(reg prometheus.Registerer, namespace string) *Set {
	s := &Set{
		StoriesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "stories_created_total",
			Help: "stories allocated by story_new",
		}),
		StoriesFreed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "stories_freed_total",
			Help: "stories unlinked and deallocated by the garbage collector",
		}),
		ReadTrackersUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "read_trackers_installed_total",
			Help: "read trackers installed by track_read/track_read_story",
		}),
		GapTrackers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "gap_trackers_installed_total",
			Help: "gap trackers installed, by flavor",
		}, []string{"flavor"}),
		PointHoles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "point_holes_installed_total",
			Help: "point-hole trackers installed by track_point",
		}),
		Demotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "read_view_demotions_total",
			Help: "send_to_read_view calls that lowered a transaction's rv_psn",
		}),
		Aborts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "transaction_aborts_total",
			Help: "abort_with_conflict invocations",
		}),
		GCSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "gc_sweeps_total",
			Help: "gc_step invocations",
		}),
		GCStoriesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "gc_stories_scanned_total",
			Help: "stories examined by gc_step",
		}),
		GCStoriesFreed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "gc_stories_freed_total",
			Help: "stories unlinked by gc_step",
		}),
		StoriesInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "stories_in_use",
			Help: "stories currently reachable (created minus freed)",
		}),
		StoryClassifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "story_classifications_total",
			Help: "stories classified by gc_step's collection predicate, by status",
		}, []string{"status"}),
	}
	if reg != nil {
		collectors := []prometheus.Collector{
			s.StoriesCreated, s.StoriesFreed, s.ReadTrackersUsed, s.GapTrackers,
			s.PointHoles, s.Demotions, s.Aborts, s.GCSweeps,
			s.GCStoriesScanned, s.GCStoriesFreed, s.StoriesInUse, s.StoryClassifications,
		}
		for _, c := range collectors {
			// Registration can fail on duplicate registration in tests that
			// share a registry; that's a test-hygiene concern, not an engine
			// concern, so it's ignored here the same way the pack's own
			// metrics setup code (talent-plan-tinykv) treats it.
			_ = reg.Register(c)
		}
	}
	return s
}

// GapFlavor names for the GapTrackers vector.
const (
	FlavorInplace  = "inplace"
	FlavorNearby   = "nearby"
	FlavorCount    = "count"
	FlavorFullScan = "fullscan"
)
