package metrics

import "fmt"

// TraceViewer builds external trace-viewer URLs for response bodies and logs.
type TraceViewer struct {
	host    string
	project string
}

// NewTraceViewer creates a trace URL builder. An empty host disables URL
// generation (URL returns "").
func NewTraceViewer(host, project string) *TraceViewer {
	return &TraceViewer{host: host, project: project}
}

// URL returns the viewer URL for a trace id, or "" when unconfigured.
func (v *TraceViewer) URL(traceID string) string {
	if v == nil || v.host == "" || traceID == "" {
		return ""
	}
	return fmt.Sprintf("https://%s/projects/%s/traces/%s", v.host, v.project, traceID)
}
