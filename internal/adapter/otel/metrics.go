package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "deckhand"

// Metrics holds all deckhand metric instruments.
type Metrics struct {
	FramesReceived    metric.Int64Counter
	FramesDropped     metric.Int64Counter
	EventsDecoded     metric.Int64Counter
	Reconnects        metric.Int64Counter
	ActiveStreams     metric.Int64UpDownCounter
	MessagesFinalized metric.Int64Counter
	PromptSendSeconds metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.FramesReceived, err = meter.Int64Counter("deckhand.stream.frames_received",
		metric.WithDescription("Raw frames received from agent backends"))
	if err != nil {
		return nil, err
	}

	m.FramesDropped, err = meter.Int64Counter("deckhand.stream.frames_dropped",
		metric.WithDescription("Frames dropped as unrecognized or malformed"))
	if err != nil {
		return nil, err
	}

	m.EventsDecoded, err = meter.Int64Counter("deckhand.stream.events_decoded",
		metric.WithDescription("Decoded events by kind"))
	if err != nil {
		return nil, err
	}

	m.Reconnects, err = meter.Int64Counter("deckhand.stream.reconnects",
		metric.WithDescription("Reconnect attempts scheduled after stream failures"))
	if err != nil {
		return nil, err
	}

	m.ActiveStreams, err = meter.Int64UpDownCounter("deckhand.stream.active",
		metric.WithDescription("Workspace streams currently connected"))
	if err != nil {
		return nil, err
	}

	m.MessagesFinalized, err = meter.Int64Counter("deckhand.messages.finalized",
		metric.WithDescription("Messages appended to conversations"))
	if err != nil {
		return nil, err
	}

	m.PromptSendSeconds, err = meter.Float64Histogram("deckhand.prompt.send_seconds",
		metric.WithDescription("Time to hand a prompt to the backend"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
