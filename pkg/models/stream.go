package models

// StreamEventType represents the type of a streaming assistant event.
type StreamEventType string

const (
	StreamEventStatus   StreamEventType = "status"
	StreamEventContent  StreamEventType = "content"
	StreamEventMetadata StreamEventType = "metadata"
	StreamEventChart    StreamEventType = "chart"
	StreamEventError    StreamEventType = "error"
	StreamEventDone     StreamEventType = "done"
)

// StreamEvent is one frame of the assistant's streaming protocol. Exactly one
// done (or terminal error) event ends every request; at most one metadata
// event precedes it.
type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	Content  string          `json:"content,omitempty"`
	Metadata *AnswerMetadata `json:"metadata,omitempty"`
	Chart    *ChartSpec      `json:"chart,omitempty"`
}

// AnswerMetadata summarizes how an answer was produced.
type AnswerMetadata struct {
	SQL        string `json:"sql"`
	RowCount   int    `json:"row_count"`
	RAGSkipped bool   `json:"rag_skipped"`
}

// ChartSpec is the structured chart description emitted when the model
// invokes the generate_chart tool.
type ChartSpec struct {
	Type        string           `json:"type"` // bar, line, pie, area, scatter
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Data        []map[string]any `json:"data"`
	XKey        string           `json:"xKey"`
	YKeys       []string         `json:"yKeys"`
	Colors      []string         `json:"colors,omitempty"`
}

// ValidChartTypes contains the chart types the tool declaration accepts.
var ValidChartTypes = []string{"bar", "line", "pie", "area", "scatter"}

// NewStatusEvent creates a progress status event.
func NewStatusEvent(content string) StreamEvent {
	return StreamEvent{Type: StreamEventStatus, Content: content}
}

// NewContentEvent creates an answer text chunk event.
func NewContentEvent(content string) StreamEvent {
	return StreamEvent{Type: StreamEventContent, Content: content}
}

// NewMetadataEvent creates the single pre-done metadata event.
func NewMetadataEvent(md AnswerMetadata) StreamEvent {
	return StreamEvent{Type: StreamEventMetadata, Metadata: &md}
}

// NewChartEvent creates a chart event.
func NewChartEvent(spec *ChartSpec) StreamEvent {
	return StreamEvent{Type: StreamEventChart, Chart: spec}
}

// NewErrorEvent creates a terminal error event.
func NewErrorEvent(content string) StreamEvent {
	return StreamEvent{Type: StreamEventError, Content: content}
}

// NewDoneEvent creates the terminal completion event.
func NewDoneEvent() StreamEvent {
	return StreamEvent{Type: StreamEventDone}
}

// IsTerminal reports whether no further events may follow this one.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == StreamEventDone || e.Type == StreamEventError
}
