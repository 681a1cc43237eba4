package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rto"

// Documents holds the document pipeline counters. A nil *Documents records nothing.
type Documents struct {
	uploaded        *prometheus.CounterVec
	verified        *prometheus.CounterVec
	rejected        *prometheus.CounterVec
	cleanupFailures *prometheus.CounterVec
}

// NewDocuments creates the collectors and registers them with reg.
func NewDocuments(reg prometheus.Registerer) (*Documents, error) {
	d := &Documents{
		uploaded: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "documents_uploaded_total", Help: "Documents stored and recorded, by document type."},
			[]string{"document_type"},
		),
		verified: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "documents_verified_total", Help: "Verification decisions, by resulting status."},
			[]string{"status"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "upload_rejected_total", Help: "Uploads refused before a record was created, by reason."},
			[]string{"reason"},
		),
		cleanupFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "upload_cleanup_failures_total", Help: "Stored files that could not be removed after a failed upload."},
			[]string{"reason"},
		),
	}
	for _, c := range []prometheus.Collector{d.uploaded, d.verified, d.rejected, d.cleanupFailures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Documents) Uploaded(documentType string) {
	if d != nil {
		d.uploaded.WithLabelValues(documentType).Inc()
	}
}

func (d *Documents) Verified(status string) {
	if d != nil {
		d.verified.WithLabelValues(status).Inc()
	}
}

func (d *Documents) Rejected(reason string) {
	if d != nil {
		d.rejected.WithLabelValues(reason).Inc()
	}
}

// CleanupFailed counts a file left behind; each one is an orphan until removed by hand.
func (d *Documents) CleanupFailed(reason string) {
	if d != nil {
		d.cleanupFailures.WithLabelValues(reason).Inc()
	}
}
