package database

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements prometheus.Collector over a Database. Values are read
// at scrape time from the store indices, so nothing is double counted.
type Collector struct {
	db *Database

	profileStatusDesc    *prometheus.Desc
	profileProcessesDesc *prometheus.Desc
	profileLogsDesc      *prometheus.Desc
	storeEntriesDesc     *prometheus.Desc
}

// NewCollector creates a collector for db.
func NewCollector(db *Database) *Collector {
	return &Collector{
		db: db,
		profileStatusDesc: prometheus.NewDesc(
			"aa_profile_status",
			"Current mode of each profile; 1 for the active status.",
			[]string{"profile", "status"}, nil),
		profileProcessesDesc: prometheus.NewDesc(
			"aa_profile_processes",
			"Number of processes seen under each profile.",
			[]string{"profile"}, nil),
		profileLogsDesc: prometheus.NewDesc(
			"aa_profile_logs",
			"Number of log lines recorded for each profile.",
			[]string{"profile"}, nil),
		storeEntriesDesc: prometheus.NewDesc(
			"aa_store_entries",
			"Total entries held per table.",
			[]string{"kind"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.profileStatusDesc
	ch <- c.profileProcessesDesc
	ch <- c.profileLogsDesc
	ch <- c.storeEntriesDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for s := range c.db.Summaries() {
		ch <- prometheus.MustNewConstMetric(
			c.profileStatusDesc,
			prometheus.GaugeValue,
			1,
			s.Profile, s.Status.String(),
		)
		ch <- prometheus.MustNewConstMetric(
			c.profileProcessesDesc,
			prometheus.GaugeValue,
			float64(s.Processes),
			s.Profile,
		)
		ch <- prometheus.MustNewConstMetric(
			c.profileLogsDesc,
			prometheus.GaugeValue,
			float64(s.Logs),
			s.Profile,
		)
	}

	for kind, n := range map[Kind]int{
		KindProfile: c.db.profiles.Len(),
		KindProcess: c.db.processes.Len(),
		KindLog:     c.db.logs.Len(),
	} {
		ch <- prometheus.MustNewConstMetric(
			c.storeEntriesDesc,
			prometheus.GaugeValue,
			float64(n),
			kind.String(),
		)
	}

	c.db.log.Debug().Msg("Collected database metrics")
}
