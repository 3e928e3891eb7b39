package cms

import (
	"context"

	"github.com/joshuapare/xmemkit/internal/format"
	"github.com/joshuapare/xmemkit/pkg/types"
)

func isStandardService(id int) bool {
	return id > 0 && id < types.MinServiceID
}

// handleStandardService runs a built-in service inline. Its status is the
// call status; there is no separate service RC.
func (s *Server) handleStandardService(ctx context.Context, id int, data []byte) types.Status {
	switch id {
	case types.LogServiceID:
		return s.logMessage(ctx, data)
	case types.DumpServiceID:
		return types.StatusPCNotImplemented
	case types.ConfigServiceID:
		return s.configLookup(data)
	case types.StatusServiceID:
		return types.StatusOK
	}
	return types.StatusOK
}

// configLookup is the CONFIG service: copy the request in, look the name
// up and copy the parameter record out to the caller.
func (s *Server) configLookup(data []byte) types.Status {
	if data == nil {
		return types.StatusStdSvcParmNull
	}
	if len(data) < format.ConfigSvcParmSize {
		return types.StatusStdSvcParmBadEyecatcher
	}
	var local [format.ConfigSvcParmSize]byte
	copy(local[:], data)
	name, err := format.DecodeConfigSvcName(local[:])
	if err != nil {
		return types.StatusStdSvcParmBadEyecatcher
	}

	rec, ok := s.config.get(name)
	if !ok {
		return types.StatusConfigParmNotFound
	}
	copy(data[format.ConfigSvcResultOffset:], rec)
	return types.StatusOK
}
