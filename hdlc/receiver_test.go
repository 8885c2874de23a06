package hdlc

import (
	"bytes"
	"testing"

	"github.com/arloliu/go-hdlc/crc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allModes = []crc.Mode{crc.Off, crc.CRC8, crc.CRC16, crc.CRC32}

func TestReceiver_StuffedVector(t *testing.T) {
	rx, sink := newTestReceiver(t, 10)

	stream := []byte{0x7E, 0x7F, 0x7D, 0x5E, 0x7D, 0x5D, 0x00, 0x7E}
	n, err := rx.Run(stream)
	require.NoError(t, err)
	assert.Equal(t, len(stream), n)

	require.Len(t, sink.frames, 1)
	assert.Equal(t, []byte{0x7F, 0x7E, 0x7D, 0x00}, sink.frames[0])
}

func TestReceiver_AllModes(t *testing.T) {
	payload := []byte{0x01, Flag, 0x02, Escape, Escape, 0x03, Fill}

	for _, mode := range allModes {
		t.Run(mode.String(), func(t *testing.T) {
			rx, sink := newTestReceiver(t, 64, WithCRC(mode), WithMTU(16))

			stream := wireFrame(mode, payload, nil)
			n, err := rx.Run(stream)
			require.NoError(t, err)
			assert.Equal(t, len(stream), n)

			require.Len(t, sink.frames, 1)
			assert.Equal(t, payload, sink.frames[0])
		})
	}
}

func TestReceiver_Fragmented(t *testing.T) {
	payloads := [][]byte{testPayload(1), testPayload(17), testPayload(64), {Flag, Flag, Escape}}

	for _, mode := range allModes {
		var stream []byte
		for _, p := range payloads {
			stream = append(stream, wireFrame(mode, p, nil)...)
		}

		for _, chunk := range []int{1, 2, 3, 5, 7, 13, len(stream)} {
			rx, sink := newTestReceiver(t, BufferSize(64, mode, 3), WithCRC(mode), WithMTU(64))

			errs := feed(rx, stream, chunk)
			assert.Empty(t, errs, "mode=%s chunk=%d", mode, chunk)
			assert.Equal(t, payloads, sink.frames, "mode=%s chunk=%d", mode, chunk)
		}
	}
}

func TestReceiver_MultipleFramesInOneCall(t *testing.T) {
	rx, sink := newTestReceiver(t, BufferSize(8, crc.CRC16, 2), WithCRC(crc.CRC16), WithMTU(8))

	var stream []byte
	for i := 1; i <= 5; i++ {
		stream = append(stream, wireFrame(crc.CRC16, testPayload(i), nil)...)
	}

	n, err := rx.Run(stream)
	require.NoError(t, err)
	assert.Equal(t, len(stream), n)
	assert.Len(t, sink.frames, 5)
}

func TestReceiver_CorruptedChecksumResync(t *testing.T) {
	for _, mode := range []crc.Mode{crc.CRC8, crc.CRC16, crc.CRC32} {
		t.Run(mode.String(), func(t *testing.T) {
			rx, sink := newTestReceiver(t, 256, WithCRC(mode), WithMTU(32))

			bad := []byte("corrupted")
			field := make([]byte, mode.FieldSize())
			crc.PutField(field, mode, crc.Compute(mode, bad))
			field[0] ^= 0x01

			good := []byte("intact")
			badFrame := wireFrame(mode, bad, field)
			stream := append(badFrame, wireFrame(mode, good, nil)...)

			n, err := rx.Run(stream)
			require.ErrorIs(t, err, ErrWrongCRC)
			assert.Equal(t, len(badFrame), n, "bad frame must be consumed through its closing FLAG")
			assert.Empty(t, sink.frames)

			n2, err := rx.Run(stream[n:])
			require.NoError(t, err)
			assert.Equal(t, len(stream)-n, n2)
			require.Len(t, sink.frames, 1)
			assert.Equal(t, good, sink.frames[0])
		})
	}
}

func TestReceiver_FrameShorterThanChecksum(t *testing.T) {
	rx, sink := newTestReceiver(t, 64, WithCRC(crc.CRC32))

	_, err := rx.Run([]byte{Flag, 0x01, 0x02, Flag})
	require.ErrorIs(t, err, ErrWrongCRC)
	assert.Empty(t, sink.frames)
	assert.Equal(t, uint64(1), rx.metrics.CRCErrCount.Load())
}

func TestReceiver_Oversize(t *testing.T) {
	for _, mode := range allModes {
		t.Run(mode.String(), func(t *testing.T) {
			rx, sink := newTestReceiver(t, BufferSize(8, mode, 2), WithCRC(mode), WithMTU(8))

			big := wireFrame(mode, bytes.Repeat([]byte{Flag, 0x11}, 10), nil)
			good := wireFrame(mode, []byte("12345678"), nil)
			stream := append(big, good...)

			errs := feed(rx, stream, 3)
			require.Len(t, errs, 1)
			assert.ErrorIs(t, errs[0], ErrDataTooLarge)

			require.Len(t, sink.frames, 1)
			assert.Equal(t, []byte("12345678"), sink.frames[0])
			assert.Equal(t, uint64(1), rx.metrics.OversizeCount.Load())
		})
	}
}

func TestReceiver_OversizeWholeBufferSlot(t *testing.T) {
	rx, sink := newTestReceiver(t, 4)
	assert.Equal(t, 4, rx.SlotSize())
	assert.Equal(t, 1, rx.Slots())

	_, err := rx.Run(wireFrame(crc.Off, []byte{1, 2, 3, 4, 5}, nil))
	require.ErrorIs(t, err, ErrDataTooLarge)

	_, err = rx.Run(wireFrame(crc.Off, []byte{1, 2, 3, 4}, nil))
	require.NoError(t, err)
	require.Len(t, sink.frames, 1)
	assert.Equal(t, []byte{1, 2, 3, 4}, sink.frames[0])
}

func TestReceiver_FillBetweenFrames(t *testing.T) {
	rx, sink := newTestReceiver(t, 128, WithCRC(crc.CRC16), WithMTU(32))

	var stream []byte
	stream = append(stream, Fill, Fill, Fill)
	stream = append(stream, wireFrame(crc.CRC16, []byte("one"), nil)...)
	stream = append(stream, bytes.Repeat([]byte{Fill}, 20)...)
	stream = append(stream, wireFrame(crc.CRC16, []byte("two"), nil)...)
	stream = append(stream, Fill)

	for _, chunk := range []int{1, 4, len(stream)} {
		sink.frames = nil
		errs := feed(rx, stream, chunk)
		assert.Empty(t, errs)
		assert.Equal(t, [][]byte{[]byte("one"), []byte("two")}, sink.frames)
	}
}

func TestReceiver_AdjacentFlags(t *testing.T) {
	rx, sink := newTestReceiver(t, 32)

	stream := []byte{Flag, Flag, Flag, Flag, 0x41, 0x42, Flag}
	n, err := rx.Run(stream)
	require.NoError(t, err)
	assert.Equal(t, len(stream), n)

	require.Len(t, sink.frames, 1)
	assert.Equal(t, []byte{0x41, 0x42}, sink.frames[0])
	assert.Equal(t, rxReadStart, rx.state)
}

func TestReceiver_FlagsOnly(t *testing.T) {
	rx, sink := newTestReceiver(t, 32, WithCRC(crc.CRC16))

	n, err := rx.Run(bytes.Repeat([]byte{Flag}, 9))
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Empty(t, sink.frames)
	assert.Equal(t, rxReadData, rx.state)
}

func TestReceiver_RingWrap(t *testing.T) {
	var offsets []int
	buf := make([]byte, 10) // two 4-byte slots, 2 bytes unused
	rx, err := NewReceiver(buf, WithMTU(4), WithFrameSink(FrameSinkFunc(func(payload []byte) {
		assert.Equal(t, len(payload), cap(payload), "payload must not expose the next slot")
		for off := 0; off+len(payload) <= len(buf); off++ {
			if &buf[off] == &payload[0] {
				offsets = append(offsets, off)
				return
			}
		}
		t.Error("payload does not alias the receive buffer")
	})))
	require.NoError(t, err)
	assert.Equal(t, 2, rx.Slots())

	for i := 1; i <= 5; i++ {
		_, err := rx.Run(wireFrame(crc.Off, testPayload(i%4+1), nil))
		require.NoError(t, err)
	}

	assert.Equal(t, []int{0, 4, 0, 4, 0}, offsets)
}

func TestReceiver_ResetMidFrame(t *testing.T) {
	rx, sink := newTestReceiver(t, 32)

	_, err := rx.Run([]byte{Flag, 0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, rxReadData, rx.state)

	rx.Reset()
	assert.Equal(t, rxReadStart, rx.state)

	_, err = rx.Run([]byte{0x03, Flag})
	require.NoError(t, err)
	assert.Empty(t, sink.frames, "bytes before reset must not leak into a frame")

	_, err = rx.Run(wireFrame(crc.Off, []byte{0x09}, nil))
	require.NoError(t, err)
	require.Len(t, sink.frames, 1)
	assert.Equal(t, []byte{0x09}, sink.frames[0])
}

func TestReceiver_ZeroValueIsInert(t *testing.T) {
	var rx Receiver
	n, err := rx.Run([]byte{Flag, 0x01, Flag})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	rx.Reset()
	assert.Equal(t, rxIdle, rx.state)
}

func TestNewReceiver_InvalidConfig(t *testing.T) {
	_, err := NewReceiver(nil)
	require.ErrorIs(t, err, ErrInvalidData)

	_, err = NewReceiver(make([]byte, 10), WithMTU(8), WithCRC(crc.CRC32))
	require.ErrorIs(t, err, ErrInvalidData)

	_, err = NewReceiver(make([]byte, 10), WithMTU(-1))
	require.ErrorIs(t, err, ErrInvalidData)

	_, err = NewReceiver(make([]byte, 10), WithCRC(crc.Mode(9)))
	require.ErrorIs(t, err, ErrInvalidData)

	_, err = NewReceiver(make([]byte, 10), WithFrameSink(nil))
	require.Error(t, err)
}

func TestRxState_String(t *testing.T) {
	assert.Equal(t, "Idle", rxIdle.String())
	assert.Equal(t, "ReadStart", rxReadStart.String())
	assert.Equal(t, "ReadData", rxReadData.String())
	assert.Equal(t, "ReadEnd", rxReadEnd.String())
	assert.Equal(t, "rxState(9)", rxState(9).String())
}
