package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/inkforge/weaver/internal/domain/planner"
	"github.com/inkforge/weaver/internal/port/generation"
)

// GenerationBackend implements the generation port with core NATS
// request/reply. Workers subscribe to weaver.generate.<kind> and answer with
// a JSON planner result.
type GenerationBackend struct {
	nc *nats.Conn
}

// NewGenerationBackend creates a backend sharing the queue's connection.
func NewGenerationBackend(q *Queue) *GenerationBackend {
	return &GenerationBackend{nc: q.nc}
}

// Generate sends one generation request and waits for the worker's reply
// until ctx expires.
func (b *GenerationBackend) Generate(ctx context.Context, req generation.Request) (*planner.Result, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal generation request: %w", err)
	}

	subject := generation.SubjectPrefix + "." + string(req.Kind)
	msg, err := b.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, fmt.Errorf("no generation worker for %s: %w", req.Kind, err)
		}
		return nil, fmt.Errorf("generation request %s: %w", req.Kind, err)
	}

	var result planner.Result
	if err := json.Unmarshal(msg.Data, &result); err != nil {
		return nil, fmt.Errorf("decode generation result %s: %w", req.Kind, err)
	}
	return &result, nil
}
