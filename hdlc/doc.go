// Package hdlc implements HDLC-style byte framing over links without message
// boundaries, such as serial lines and byte pipes.
//
// # Wire Format
//
// Each payload is sent as one frame:
//
//	FLAG | stuffed(payload ++ checksum) | FLAG
//
// FLAG (0x7E) delimits frames. Inside the stuffed region every FLAG or
// ESCAPE (0x7D) byte is replaced by ESCAPE followed by the byte XORed with
// 0x20, so a literal FLAG never appears between delimiters. FILL bytes (0xFF)
// and any other bytes outside a frame are ignored by the receiver.
//
// The checksum field is 0, 1, 2 or 4 bytes wide depending on the [crc.Mode],
// is computed over the unstuffed payload only, and is sent least significant
// byte first.
//
// # State Machines
//
// [Receiver] and [Transmitter] are resumable state machines. [Receiver.Run]
// accepts input chunks of any size, [Transmitter.Run] fills output buffers of
// any size, and neither ever blocks: work that does not fit into one call is
// kept in the machine and continued by the next call. Completed frames are
// reported synchronously through the [FrameSink] and [FrameSentHandler]
// callbacks.
//
// [Codec] combines one Receiver and one Transmitter that share a checksum
// mode, and is the usual entry point:
//
//	buf := make([]byte, hdlc.BufferSize(256, crc.CRC16, 3))
//	codec, err := hdlc.NewCodec(buf,
//	    hdlc.WithMTU(256),
//	    hdlc.WithCRC(crc.CRC16),
//	    hdlc.WithFrameSink(hdlc.FrameSinkFunc(func(payload []byte) {
//	        // payload aliases the receive buffer; copy it to keep it.
//	    })),
//	)
//
//	_ = codec.Put([]byte("hello"))
//	out := make([]byte, 64)
//	n := codec.RunTx(out) // out[:n] goes to the wire
//
//	consumed, err := codec.RunRx(wireBytes)
//
// None of the types in this package are goroutine-safe. A Codec must be
// driven from a single goroutine or be externally serialized; see the link
// package for a goroutine-owning driver.
package hdlc
