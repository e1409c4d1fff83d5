package model

// ModelFilter is an AND of optional equality constraints. Nil fields match anything.
type ModelFilter struct {
	Streaming   *bool
	Vision      *bool
	Tools       *bool
	Temperature *bool
	Provider    *string
}

// Matches reports whether m satisfies every present constraint.
func (f ModelFilter) Matches(m Model) bool {
	if f.Streaming != nil && m.Capabilities.SupportsStreaming != *f.Streaming {
		return false
	}
	if f.Vision != nil && m.Capabilities.SupportsVision != *f.Vision {
		return false
	}
	if f.Tools != nil && m.Capabilities.SupportsTools != *f.Tools {
		return false
	}
	if f.Temperature != nil && m.Capabilities.SupportsTemperature != *f.Temperature {
		return false
	}
	if f.Provider != nil && m.Provider != *f.Provider {
		return false
	}
	return true
}

func (f ModelFilter) WithStreaming(v bool) ModelFilter   { f.Streaming = &v; return f }
func (f ModelFilter) WithVision(v bool) ModelFilter      { f.Vision = &v; return f }
func (f ModelFilter) WithTools(v bool) ModelFilter       { f.Tools = &v; return f }
func (f ModelFilter) WithTemperature(v bool) ModelFilter { f.Temperature = &v; return f }
func (f ModelFilter) WithProvider(p string) ModelFilter  { f.Provider = &p; return f }
