// Package behavior extracts per-actor activity features and scores them
// with an isolation forest.
package behavior

import (
	"strings"
	"time"

	"github.com/aegis-sec/sentinel/internal/core"
)

// NumFeatures is the dimensionality of the feature vector.
const NumFeatures = 16

// FeatureNames returns the vector components in extraction order. The
// order is part of the model contract and must not change between
// training and scoring.
func FeatureNames() []string {
	return []string{
		"total_events_24h",
		"total_bytes_mb_24h",
		"unique_documents_24h",
		"is_after_hours",
		"is_weekend",
		"hour_of_day",
		"cross_dept_access_count",
		"cross_dept_ratio",
		"download_count",
		"modify_count",
		"view_count",
		"confidential_access_count",
		"internal_access_count",
		"avg_session_duration",
		"unique_ips",
		"unique_devices",
	}
}

// AfterHours reports whether t falls outside the 8:00-18:00 workday.
func AfterHours(t time.Time) bool {
	h := t.Hour()
	return h < 8 || h > 18
}

// Weekend reports whether t is Saturday or Sunday.
func Weekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Extract builds the feature vector for ev given the actor's events from
// the trailing 24h window (not including ev itself). docSensitivity is the
// sensitivity of the document the event touches.
func Extract(ev *core.Event, recent []*core.Event, docSensitivity core.SensitivityLevel) []float64 {
	f := make([]float64, NumFeatures)

	totalEvents := len(recent) + 1
	var totalBytes = ev.BytesTransferred
	docs := map[string]struct{}{ev.DocumentID: {}}
	ips := map[string]struct{}{}
	devices := map[string]struct{}{}
	var crossDept, downloads, modifies, views int
	var sessionSum float64
	var sessionN int

	actorDept := strings.ToLower(ev.ActorDepartment)
	for _, e := range recent {
		totalBytes += e.BytesTransferred
		docs[e.DocumentID] = struct{}{}
		if e.SourceIP != "" {
			ips[e.SourceIP] = struct{}{}
		}
		if e.DeviceInfo != "" {
			devices[e.DeviceInfo] = struct{}{}
		}
		if strings.ToLower(e.TargetDepartment) != actorDept {
			crossDept++
		}
		switch e.Action {
		case core.ActionDownload:
			downloads++
		case core.ActionModify:
			modifies++
		case core.ActionView:
			views++
		}
		if e.SessionDuration > 0 {
			sessionSum += e.SessionDuration
			sessionN++
		}
	}

	crossRatio := float64(crossDept) / float64(max(len(recent), 1))

	switch ev.Action {
	case core.ActionDownload:
		downloads++
	case core.ActionModify:
		modifies++
	case core.ActionView:
		views++
	}
	if ev.CrossDepartment() {
		crossDept++
	}
	if ev.SourceIP != "" {
		ips[ev.SourceIP] = struct{}{}
	}
	if ev.DeviceInfo != "" {
		devices[ev.DeviceInfo] = struct{}{}
	}
	if ev.SessionDuration > 0 {
		sessionSum += ev.SessionDuration
		sessionN++
	}

	var confidential, internal int
	switch docSensitivity {
	case core.SensitivityConfidential:
		confidential = 1
	case core.SensitivityInternal:
		internal = 1
	}

	var avgSession float64
	if sessionN > 0 {
		avgSession = sessionSum / float64(sessionN)
	}

	f[0] = float64(totalEvents)
	f[1] = float64(totalBytes) / 1e6
	f[2] = float64(len(docs))
	f[3] = boolToFloat(AfterHours(ev.Timestamp))
	f[4] = boolToFloat(Weekend(ev.Timestamp))
	f[5] = float64(ev.Timestamp.Hour())
	f[6] = float64(crossDept)
	f[7] = crossRatio
	f[8] = float64(downloads)
	f[9] = float64(modifies)
	f[10] = float64(views)
	f[11] = float64(confidential)
	f[12] = float64(internal)
	f[13] = avgSession
	f[14] = float64(max(len(ips), 1))
	f[15] = float64(max(len(devices), 1))
	return f
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
