package stage

// Health reports whether one pipeline stage can currently take work. Detail
// is only set when the stage is not ready and names what is missing, so
// status output can tell the operator what to fix.
type Health struct {
	Stage  string
	Ready  bool
	Detail string
}

// Healthy reports a stage ready for work.
func Healthy(stage string) Health {
	return Health{Stage: stage, Ready: true}
}

// Unhealthy reports a stage that cannot take work, with the reason.
func Unhealthy(stage, detail string) Health {
	return Health{Stage: stage, Ready: false, Detail: detail}
}

// Summary renders the record as a single line for logs.
func (h Health) Summary() string {
	if h.Ready {
		return h.Stage + ": ready"
	}
	return h.Stage + ": " + h.Detail
}
