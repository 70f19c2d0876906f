package commands

import (
	"context"

	"github.com/eclipse-openj9/openj9-sub029/errors"
	"github.com/eclipse-openj9/openj9-sub029/internal/session"
	"github.com/eclipse-openj9/openj9-sub029/internal/wire"
)

// noopCompiler stands in for the actual JIT backend, which is out of
// scope for this coordination core (it treats code generation as an
// opaque black box). A real deployment links in a concrete
// compiler.ExternalCompiler built on the target VM's JIT.
type noopCompiler struct{}

func (noopCompiler) Compile(ctx context.Context, req *wire.CompilationRequest, scratch *session.Scratch) (*wire.CompilationCode, error) {
	return nil, errors.New("no external compiler backend configured")
}
