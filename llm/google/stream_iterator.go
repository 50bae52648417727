package google

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/deepnoodle-ai/conductor/llm"
)

// streamIterator adapts the SDK's push sequence of response chunks to the
// pull-based llm.Stream. Text accumulates across chunks; tool calls are
// surfaced as soon as their chunk arrives; the terminal event carries the
// aggregated response with the final usage numbers.
type streamIterator struct {
	next    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	pending []*llm.Event
	final   llm.Response
	err     error
	done    bool
}

func newStreamIterator(seq iter.Seq2[*genai.GenerateContentResponse, error]) *streamIterator {
	next, stop := iter.Pull2(seq)
	return &streamIterator{next: next, stop: stop}
}

func (s *streamIterator) Next(ctx context.Context) (*llm.Event, bool) {
	for {
		if len(s.pending) > 0 {
			event := s.pending[0]
			s.pending = s.pending[1:]
			return event, true
		}
		if s.done || s.err != nil {
			return nil, false
		}
		if ctx.Err() != nil {
			s.err = ctx.Err()
			s.stop()
			return nil, false
		}

		chunk, err, ok := s.next()
		if !ok {
			s.done = true
			s.pending = append(s.pending, &llm.Event{
				Type:     llm.EventDone,
				Response: s.finalResponse(),
			})
			continue
		}
		if err != nil {
			s.err = classifyError(err)
			s.stop()
			return nil, false
		}
		s.ingest(chunk)
	}
}

func (s *streamIterator) ingest(chunk *genai.GenerateContentResponse) {
	if chunk.UsageMetadata != nil {
		// Later chunks carry cumulative usage; keep the latest.
		s.final.Usage = convertUsage(chunk)
	}
	if len(chunk.Candidates) == 0 || chunk.Candidates[0].Content == nil {
		return
	}
	for _, part := range chunk.Candidates[0].Content.Parts {
		switch {
		case part.FunctionCall != nil:
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				s.err = fmt.Errorf("error marshaling function call args: %w", err)
				s.stop()
				return
			}
			call := llm.ToolCall{
				ID:        callID(part.FunctionCall),
				Name:      part.FunctionCall.Name,
				Arguments: args,
			}
			s.final.ToolCalls = append(s.final.ToolCalls, call)
			s.pending = append(s.pending, &llm.Event{Type: llm.EventToolCall, ToolCall: &call})
		case part.Text != "":
			s.final.Text += part.Text
			s.pending = append(s.pending, &llm.Event{Type: llm.EventDelta, Text: part.Text})
		}
	}
}

func (s *streamIterator) finalResponse() *llm.Response {
	resp := s.final
	resp.StopReason = llm.StopEndTurn
	if resp.HasToolCalls() {
		resp.StopReason = llm.StopToolCall
	}
	return &resp
}

func (s *streamIterator) Err() error {
	return s.err
}

func (s *streamIterator) Close() error {
	if !s.done {
		s.stop()
		s.done = true
	}
	return nil
}
