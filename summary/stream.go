package summary

import "strings"

// Sink receives incremental summary text. The boundary layer adapts it to
// SSE, a console writer or a test collector; the core only pushes chunks.
type Sink interface {
	Emit(chunk string)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(chunk string)

func (f SinkFunc) Emit(chunk string) { f(chunk) }

// DiscardSink drops every chunk.
var DiscardSink = SinkFunc(func(string) {})

// Stream renders the context and pushes the text through the sink. In
// simulated-streaming mode the text arrives in two chunks, split at the
// evidence map; otherwise the full text is emitted at once. The complete
// text is returned regardless of mode.
func Stream(ctx StreamContext, sink Sink, simulateStreaming bool) string {
	if sink == nil {
		sink = DiscardSink
	}
	text := Render(ctx)
	if !simulateStreaming {
		sink.Emit(text)
		return text
	}

	marker := "\n## Evidence Map"
	if idx := strings.Index(text, marker); idx > 0 {
		sink.Emit(text[:idx])
		sink.Emit(text[idx:])
	} else {
		sink.Emit(text)
	}
	return text
}
