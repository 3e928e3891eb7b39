package cms

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joshuapare/xmemkit/cms/area"
	"github.com/joshuapare/xmemkit/internal/format"
	"github.com/joshuapare/xmemkit/internal/logger"
	"github.com/joshuapare/xmemkit/pkg/types"
)

// CallFlags modify a single call.
type CallFlags uint16

const (
	CallNone CallFlags = CallFlags(format.ParmListFlagNone)
	// CallNoSAFCheck asks a privileged caller's call to skip the access
	// check. Servers started with CheckAuth ignore it.
	CallNoSAFCheck CallFlags = CallFlags(format.ParmListFlagNoSAFCheck)
)

// Status is the result of GetStatus.
type Status struct {
	RC          types.Status
	Description string
}

func makeStatus(rc types.Status) Status {
	return Status{RC: rc, Description: rc.Description()}
}

// Client calls the servers published in a registry. The caller identity
// is taken from the context, see types.WithCaller.
type Client struct {
	reg *area.Registry
}

// NewClient returns a client of reg. A nil reg selects area.Default().
func NewClient(reg *area.Registry) *Client {
	if reg == nil {
		reg = area.Default()
	}
	return &Client{reg: reg}
}

var defaultClient = NewClient(nil)

// GetGlobalArea finds the current-version area of the named server.
func (c *Client) GetGlobalArea(name types.ServerName) (*area.GlobalArea, error) {
	return c.reg.Lookup(name)
}

// CallService calls service id of the named server with data as the caller
// data. It returns the service RC; err carries the call status.
func (c *Client) CallService(ctx context.Context, name types.ServerName, id int, data []byte) (int32, error) {
	if name == "" {
		return 0, types.ErrServerNameNull
	}
	if id <= 0 || id > types.MaxServiceID {
		return 0, types.ErrFunctionIDOutOfRange
	}
	ga, err := c.reg.Lookup(name)
	if err != nil {
		return 0, err
	}
	return c.CallService3(ctx, ga, id, data, CallNone)
}

// CallService2 calls service id through an area the caller already holds.
func (c *Client) CallService2(ctx context.Context, ga *area.GlobalArea, id int, data []byte) (int32, error) {
	return c.CallService3(ctx, ga, id, data, CallNone)
}

// CallService3 is CallService2 with call flags.
func (c *Client) CallService3(ctx context.Context, ga *area.GlobalArea, id int, data []byte, flags CallFlags) (int32, error) {
	if ga == nil {
		return 0, types.ErrGlobalAreaNull
	}
	if ga.Version() != types.Version {
		return 0, types.ErrWrongServerVersion
	}
	if id <= 0 || id > types.MaxServiceID {
		return 0, types.ErrFunctionIDOutOfRange
	}
	return c.callServiceInternal(ctx, ga, id, data, flags)
}

func (c *Client) callServiceInternal(ctx context.Context, ga *area.GlobalArea, id int, data []byte, flags CallFlags) (int32, error) {
	if !ga.HasServerFlags(area.ServerReady) {
		return 0, types.ErrServerNotReady
	}

	svc, _ := ga.Service(id)
	pc := ga.PCInfo()
	number, seq := pc.CPNumber, pc.CPSequence
	if svc.Flags&area.ServiceSpaceSwitch != 0 {
		number, seq = pc.SSNumber, pc.SSSequence
	}
	if number == 0 {
		return 0, types.ErrZeroPCNumber
	}

	block := &format.Block{Data: data}
	if err := format.EncodeParmList(block.Header[:], format.ParmList{
		Version:    types.Version,
		ServerName: ga.Name(),
		ServiceID:  int32(id),
		Flags:      uint16(flags),
	}); err != nil {
		return 0, types.ErrParmBadEyecatcher.Wrap(err)
	}

	rc, err := c.reg.CallPC(ctx, number, seq, block)
	if err != nil {
		if rc == int(types.StatusOK) {
			rc = int(types.StatusError)
		}
		return 0, fmt.Errorf("%w: %w", types.ErrorOf(types.Status(rc)), err)
	}
	serviceRC := format.ReadI32(block.Header[:], format.ParmListServiceRCOffset)
	return serviceRC, types.ErrorOf(types.Status(rc))
}

// Printf formats a message and sends it to the named server's LOG service.
// The server prints it on its next flush.
func (c *Client) Printf(ctx context.Context, name types.ServerName, formatString string, args ...any) error {
	return c.logText(ctx, name, fmt.Sprintf(formatString, args...))
}

func (c *Client) logText(ctx context.Context, name types.ServerName, text string) error {
	parm, err := format.EncodeLogParm(logPrefix(ctx), text)
	switch {
	case errors.Is(err, format.ErrTooLong):
		return types.ErrMessageTooLong
	case err != nil:
		return types.ErrFormatFailed.Wrap(err)
	}
	_, err = c.CallService(ctx, name, types.LogServiceID, parm)
	return err
}

// GetConfigParm reads a parameter from the named server's CONFIG service.
func (c *Client) GetConfigParm(ctx context.Context, name types.ServerName, parm string) (string, ParmType, error) {
	return c.getConfigParm(ctx, name, parm, CallNone)
}

// GetConfigParmUnchecked is GetConfigParm for privileged callers that skip
// the access check. Servers started with CheckAuth still check.
func (c *Client) GetConfigParmUnchecked(ctx context.Context, name types.ServerName, parm string) (string, ParmType, error) {
	return c.getConfigParm(ctx, name, parm, CallNoSAFCheck)
}

func (c *Client) getConfigParm(ctx context.Context, name types.ServerName, parm string, flags CallFlags) (string, ParmType, error) {
	if name == "" {
		return "", 0, types.ErrServerNameNull
	}
	if len(parm) > types.ConfigParmMaxNameLen {
		return "", 0, types.ErrConfigParmNameTooLong
	}
	req, err := format.EncodeConfigSvcParm(parm)
	if err != nil {
		return "", 0, types.ErrFormatFailed.Wrap(err)
	}
	ga, err := c.reg.Lookup(name)
	if err != nil {
		return "", 0, err
	}
	if _, err := c.CallService3(ctx, ga, types.ConfigServiceID, req, flags); err != nil {
		return "", 0, err
	}
	p, err := format.DecodeConfigParm(req, format.ConfigSvcResultOffset)
	if err != nil {
		return "", 0, types.ErrStdSvcParmBadEyecatcher.Wrap(err)
	}
	return p.Value, ParmType(p.Type), nil
}

// Hex dump limits.
const (
	hexDumpMaxData        = 512
	hexDumpMaxDescription = 31
)

// HexDump sends a hex dump of data to the named server's LOG service, one
// message for the description and one per 16-byte row. Data beyond 512
// bytes and description text beyond 31 characters are dropped.
func (c *Client) HexDump(ctx context.Context, name types.ServerName, data []byte, description string) error {
	if len(data) > hexDumpMaxData {
		data = data[:hexDumpMaxData]
	}
	if len(description) > hexDumpMaxDescription {
		description = description[:hexDumpMaxDescription]
	}
	if err := c.logText(ctx, name, fmt.Sprintf("%s (%d bytes)", description, len(data))); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	for _, line := range logger.HexLines(data) {
		if err := c.logText(ctx, name, line); err != nil {
			return err
		}
	}
	return nil
}

// TestAuth checks that the caller in ctx has READ access to entity in
// class, using the authorizer of the server behind ga. Service functions
// call it for checks of their own.
func (c *Client) TestAuth(ctx context.Context, ga *area.GlobalArea, class, entity string) error {
	if ga == nil {
		return types.ErrGlobalAreaNull
	}
	srv, _ := ga.Server().(*Server)
	if srv == nil {
		return types.ErrServerNull
	}
	if !srv.opts.Authorizer.FastAuth(ctx, types.CallerFrom(ctx), class, entity, AccessRead) {
		return types.ErrPermissionDenied
	}
	return nil
}

// GetPCLogLevel returns the log level the named server's PC routines run
// with, or logger.LevelNA when the server is not found.
func (c *Client) GetPCLogLevel(name types.ServerName) logger.Level {
	ga, err := c.reg.Lookup(name)
	if err != nil {
		return logger.LevelNA
	}
	return logger.Level(ga.PCLogLevel())
}

// GetStatus calls the STATUS service of the named server.
func (c *Client) GetStatus(ctx context.Context, name types.ServerName) Status {
	_, err := c.CallService(ctx, name, types.StatusServiceID, nil)
	return makeStatus(types.StatusOf(err))
}

// AllocateECSA allocates a common storage block charged to the named server.
func (c *Client) AllocateECSA(name types.ServerName, size int) (*area.ECSABlock, error) {
	ga, err := c.reg.Lookup(name)
	if err != nil {
		return nil, err
	}
	return ga.AllocateECSA(size)
}

// FreeECSA releases a block allocated by AllocateECSA.
func (c *Client) FreeECSA(name types.ServerName, b *area.ECSABlock) error {
	ga, err := c.reg.Lookup(name)
	if err != nil {
		return err
	}
	return ga.FreeECSA(b)
}

// logPrefix builds the fixed-width prefix of a LOG service message.
func logPrefix(ctx context.Context) string {
	caller := types.CallerFrom(ctx)
	job := strings.ToUpper(filepath.Base(os.Args[0]))
	return fmt.Sprintf("%-22.22s %-8.8s (%04X) ",
		time.Now().UTC().Format("2006/01/02 15:04:05.00"), job, caller.ASID)
}

// MakeServerName pads name to the fixed server name width.
func MakeServerName(name string) types.ServerName { return types.MakeServerName(name) }

// CallService calls a server published in area.Default().
func CallService(ctx context.Context, name types.ServerName, id int, data []byte) (int32, error) {
	return defaultClient.CallService(ctx, name, id, data)
}

// CallService2 calls a service through ga.
func CallService2(ctx context.Context, ga *area.GlobalArea, id int, data []byte) (int32, error) {
	return defaultClient.CallService2(ctx, ga, id, data)
}

// CallService3 calls a service through ga with flags.
func CallService3(ctx context.Context, ga *area.GlobalArea, id int, data []byte, flags CallFlags) (int32, error) {
	return defaultClient.CallService3(ctx, ga, id, data, flags)
}

// GetGlobalArea finds a server published in area.Default().
func GetGlobalArea(name types.ServerName) (*area.GlobalArea, error) {
	return defaultClient.GetGlobalArea(name)
}

// Printf sends a message to the LOG service of a server in area.Default().
func Printf(ctx context.Context, name types.ServerName, formatString string, args ...any) error {
	return defaultClient.Printf(ctx, name, formatString, args...)
}

// GetConfigParm reads a parameter of a server in area.Default().
func GetConfigParm(ctx context.Context, name types.ServerName, parm string) (string, ParmType, error) {
	return defaultClient.GetConfigParm(ctx, name, parm)
}

// GetConfigParmUnchecked reads a parameter of a server in area.Default()
// without the access check.
func GetConfigParmUnchecked(ctx context.Context, name types.ServerName, parm string) (string, ParmType, error) {
	return defaultClient.GetConfigParmUnchecked(ctx, name, parm)
}

// HexDump logs a hex dump through a server in area.Default().
func HexDump(ctx context.Context, name types.ServerName, data []byte, description string) error {
	return defaultClient.HexDump(ctx, name, data, description)
}

// TestAuth checks the caller's READ access to class/entity.
func TestAuth(ctx context.Context, ga *area.GlobalArea, class, entity string) error {
	return defaultClient.TestAuth(ctx, ga, class, entity)
}

// GetPCLogLevel returns the PC log level of a server in area.Default().
func GetPCLogLevel(name types.ServerName) logger.Level {
	return defaultClient.GetPCLogLevel(name)
}

// GetStatus returns the status of a server in area.Default().
func GetStatus(ctx context.Context, name types.ServerName) Status {
	return defaultClient.GetStatus(ctx, name)
}
