// Package blocks registers the built-in block implementations with a
// registry.
package blocks

import (
	"github.com/jmylchreest/vidpipe/internal/pipeline/blocks/consolesink"
	"github.com/jmylchreest/vidpipe/internal/pipeline/blocks/filesink"
	"github.com/jmylchreest/vidpipe/internal/pipeline/blocks/tcpsink"
	"github.com/jmylchreest/vidpipe/internal/pipeline/blocks/testpattern"
	"github.com/jmylchreest/vidpipe/internal/pipeline/core"
)

// RegisterAll registers every built-in block type with the registry.
func RegisterAll(reg *core.Registry) error {
	if err := reg.Register(testpattern.TypeName, func() core.Block { return testpattern.New() }); err != nil {
		return err
	}
	if err := reg.Register(consolesink.TypeName, func() core.Block { return consolesink.New() }); err != nil {
		return err
	}
	if err := reg.Register(filesink.TypeName, func() core.Block { return filesink.New() }); err != nil {
		return err
	}
	return reg.Register(tcpsink.TypeName, func() core.Block { return tcpsink.New() })
}
