package grpc

import (
	"encoding/binary"
	"fmt"

	"github.com/tradsys-labs/exchange-core/internal/domain"
)

// wireFrameSize is orderId-high (4) + symbol (4) + five 64-bit payload
// words (40), per §6 "Binary framing (wire)".
const wireFrameSize = 4 + 4 + 5*8

// decodeWireFrame parses one on-the-wire frame: orderId high 32 (total
// length on the first frame of a sequence, 0 thereafter), symbol (-1 marks
// the terminal frame), then the five 64-bit payload words (orderId low 32,
// price, reserveBidPrice, size, uid) that BinaryProcessor.Accept expects in
// OrderCommand.BinaryWords.
func decodeWireFrame(raw []byte) (cmd *domain.OrderCommand, orderIDHigh int32, err error) {
	if len(raw) != wireFrameSize {
		return nil, 0, fmt.Errorf("grpc: wire frame is %d bytes, want %d", len(raw), wireFrameSize)
	}
	orderIDHigh = int32(binary.LittleEndian.Uint32(raw[0:4]))
	symbol := int32(binary.LittleEndian.Uint32(raw[4:8]))
	cmd = &domain.OrderCommand{SymbolID: domain.SymbolID(symbol)}
	for i := 0; i < 5; i++ {
		cmd.BinaryWords[i] = int64(binary.LittleEndian.Uint64(raw[8+i*8:]))
	}
	return cmd, orderIDHigh, nil
}

// encodeWireFrame is decodeWireFrame's inverse, used to frame a binary
// query's response back to the caller.
func encodeWireFrame(cmd *domain.OrderCommand, orderIDHigh int32) []byte {
	raw := make([]byte, wireFrameSize)
	binary.LittleEndian.PutUint32(raw[0:4], uint32(orderIDHigh))
	binary.LittleEndian.PutUint32(raw[4:8], uint32(int32(cmd.SymbolID)))
	for i := 0; i < 5; i++ {
		binary.LittleEndian.PutUint64(raw[8+i*8:], uint64(cmd.BinaryWords[i]))
	}
	return raw
}
