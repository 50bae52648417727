package llm

import (
	"context"
	"errors"
)

// ErrStreamTruncated reports a stream that ended without a final response.
var ErrStreamTruncated = errors.New("stream ended without a final response")

// EventType discriminates streaming events.
type EventType string

const (
	// EventDelta carries a chunk of response text.
	EventDelta EventType = "delta"
	// EventToolCall carries a complete tool invocation request.
	EventToolCall EventType = "tool_call"
	// EventDone closes the stream and carries the final Response.
	EventDone EventType = "done"
)

// Event is one streaming increment. A successful stream ends with an
// EventDone whose Response aggregates everything streamed before it.
type Event struct {
	Type     EventType `json:"type"`
	Text     string    `json:"text,omitempty"`
	ToolCall *ToolCall `json:"tool_call,omitempty"`
	Response *Response `json:"response,omitempty"`
}

// Stream yields generation events.
type Stream interface {
	// Next returns the next event, or false when the stream is complete
	// or failed. Failures are reported by Err.
	Next(ctx context.Context) (*Event, bool)

	// Err returns the error that terminated the stream, if any.
	Err() error

	// Close releases the stream's resources.
	Close() error
}

// ReplayStream yields a fixed event sequence ending in EventDone. Test
// models use it to satisfy Stream with an already-complete response.
type ReplayStream struct {
	events []*Event
	pos    int
}

// NewReplayStream builds a stream that emits one delta per text chunk,
// one event per tool call, then the final response.
func NewReplayStream(resp *Response) *ReplayStream {
	var events []*Event
	if resp.Text != "" {
		events = append(events, &Event{Type: EventDelta, Text: resp.Text})
	}
	for i := range resp.ToolCalls {
		events = append(events, &Event{Type: EventToolCall, ToolCall: &resp.ToolCalls[i]})
	}
	events = append(events, &Event{Type: EventDone, Response: resp})
	return &ReplayStream{events: events}
}

func (s *ReplayStream) Next(ctx context.Context) (*Event, bool) {
	if ctx.Err() != nil || s.pos >= len(s.events) {
		return nil, false
	}
	event := s.events[s.pos]
	s.pos++
	return event, true
}

func (s *ReplayStream) Err() error   { return nil }
func (s *ReplayStream) Close() error { return nil }

// Drain consumes a stream to completion and returns the final response.
func Drain(ctx context.Context, stream Stream) (*Response, error) {
	defer stream.Close()
	var final *Response
	for {
		event, ok := stream.Next(ctx)
		if !ok {
			break
		}
		if event.Type == EventDone {
			final = event.Response
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	if final == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrStreamTruncated
	}
	return final, nil
}
