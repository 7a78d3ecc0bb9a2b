package provider

import (
	"context"

	"github.com/agentmesh/agentmesh/internal/core"
	"github.com/agentmesh/agentmesh/internal/logging"
	"github.com/agentmesh/agentmesh/internal/tools"
)

// localTool is the in-process tool handle backing offline runs.
type localTool struct {
	signature string
}

func (t localTool) Signature() string {
	return t.signature
}

// LocalToolFactory provisions an in-process handle for any signature.
func LocalToolFactory(ctx context.Context, signature string) (core.ToolHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return localTool{signature: signature}, nil
}

// LocalToolValidator accepts any handle carrying a non-empty signature.
func LocalToolValidator(ctx context.Context, handle core.ToolHandle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handle.Signature() == "" {
		return core.ErrValidation("EMPTY_SIGNATURE", "tool handle has no signature")
	}
	return nil
}

// NewLocalRegistry builds a registry wired to the in-process factory, with
// the default capability alternates registered.
func NewLocalRegistry(logger *logging.Logger) *tools.Registry {
	r := tools.NewRegistry(LocalToolFactory, LocalToolValidator, logger)
	r.RegisterAlternates("web_search", "web_search", "document_lookup")
	r.RegisterAlternates("data_analysis", "data_analysis", "text_generation")
	return r
}
