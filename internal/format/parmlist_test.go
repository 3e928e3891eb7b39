package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/xmemkit/pkg/types"
)

// Test_ParmList_EncodeDecode verifies a header survives the caller boundary
// and that the eyecatcher is stored in EBCDIC.
func Test_ParmList_EncodeDecode(t *testing.T) {
	var blk Block
	in := ParmList{
		Version:    types.Version,
		ServerName: types.MakeServerName("ZWESIS_STD"),
		ServiceID:  17,
		Flags:      ParmListFlagNoSAFCheck,
	}
	require.NoError(t, EncodeParmList(blk.Header[:], in))

	// "R" is 0xD9 in code page 037.
	assert.Equal(t, byte(0xD9), blk.Header[0])

	out, err := DecodeParmList(blk.Header[:])
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.True(t, out.NoSAFCheck())
	assert.Equal(t, "ZWESIS_STD", out.ServerName.Trimmed())
}

// Test_ParmList_DecodeIsACopy verifies that later caller writes do not leak
// into a decoded header.
func Test_ParmList_DecodeIsACopy(t *testing.T) {
	var blk Block
	require.NoError(t, EncodeParmList(blk.Header[:], ParmList{Version: 2, ServiceID: 11}))

	out, err := DecodeParmList(blk.Header[:])
	require.NoError(t, err)

	PutI32(blk.Header[:], ParmListServiceIDOffset, 99)
	assert.Equal(t, int32(11), out.ServiceID)
}

func Test_ParmList_BadEyecatcher(t *testing.T) {
	var blk Block
	copy(blk.Header[:], "RSCMSPRM") // ASCII, not EBCDIC
	_, err := DecodeParmList(blk.Header[:])
	require.ErrorIs(t, err, ErrSignatureMismatch)

	_, err = DecodeParmList(blk.Header[:4])
	require.ErrorIs(t, err, ErrTruncated)
}

func Test_PutServiceRC(t *testing.T) {
	var blk Block
	require.NoError(t, EncodeParmList(blk.Header[:], ParmList{Version: 2}))
	require.NoError(t, PutServiceRC(blk.Header[:], -3))

	out, err := DecodeParmList(blk.Header[:])
	require.NoError(t, err)
	assert.Equal(t, int32(-3), out.ServiceRC)
}

func Test_LogParm_RoundTrip(t *testing.T) {
	b, err := EncodeLogParm("2026/10/18 12:00:00.00 ZWESIS01", "hello from a caller")
	require.NoError(t, err)
	require.Len(t, b, LogParmSize)
	require.True(t, IsLogParm(b))

	msg := LogParmMessage(b)
	assert.Len(t, msg, LogParmPrefixSize+len("hello from a caller"))
	assert.Contains(t, msg, "ZWESIS01")
	assert.Contains(t, msg, "hello from a caller")
}

func Test_LogParm_TextTooLong(t *testing.T) {
	text := make([]byte, LogParmTextSize)
	for i := range text {
		text[i] = 'x'
	}
	_, err := EncodeLogParm("", string(text))
	require.ErrorIs(t, err, ErrTooLong)

	_, err = EncodeLogParm("", string(text[:LogParmTextSize-1]))
	require.NoError(t, err)
}

func Test_LogParm_ClampsLength(t *testing.T) {
	b, err := EncodeLogParm("", "abc")
	require.NoError(t, err)
	PutI32(b, LogParmLengthOffset, 1<<20)
	assert.Len(t, LogParmMessage(b), LogParmMessageSize)
}

func Test_ConfigSvcParm(t *testing.T) {
	b, err := EncodeConfigSvcParm("TRACE.LEVEL")
	require.NoError(t, err)

	name, err := DecodeConfigSvcName(b)
	require.NoError(t, err)
	assert.Equal(t, "TRACE.LEVEL", name)

	require.NoError(t, EncodeConfigParm(b, ConfigSvcResultOffset, ConfigParm{Value: "DEBUG"}))
	rec, err := DecodeConfigParm(b, ConfigSvcResultOffset)
	require.NoError(t, err)
	assert.Equal(t, ConfigParmTypeChar, rec.Type)
	assert.Equal(t, "DEBUG", rec.Value)
}

// Test_ConfigSvcName_Unterminated verifies a caller cannot make the server
// read past the name field by omitting the terminator.
func Test_ConfigSvcName_Unterminated(t *testing.T) {
	b, err := EncodeConfigSvcParm("")
	require.NoError(t, err)
	for i := 0; i < ConfigSvcNameSize; i++ {
		b[ConfigSvcNameOffset+i] = 'A'
	}
	name, err := DecodeConfigSvcName(b)
	require.NoError(t, err)
	assert.Len(t, name, ConfigSvcNameSize-1)
}

func TestAlign8(t *testing.T) {
	assert.Equal(t, 8, Align8(1))
	assert.Equal(t, 8, Align8(8))
	assert.Equal(t, 16, Align8(9))
	assert.Equal(t, 65536, Align8(65536))
	assert.Equal(t, 8192, AlignPage(4097))
}
