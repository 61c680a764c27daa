package matching

import (
	"encoding/binary"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/klauspost/compress/zstd"
	"github.com/segmentio/ksuid"

	"github.com/tradsys-labs/exchange-core/internal/domain"
)

// protocolConstraint is the binary-frame wire version this build accepts
// (§6); bumped whenever the five-word frame layout changes incompatibly.
var protocolConstraint = semver.MustParse("1.0.0")

// CompatibleWith reports whether a peer advertising version can exchange
// binary frames with this build.
func CompatibleWith(version string) (bool, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false, fmt.Errorf("matching: invalid protocol version %q: %w", version, err)
	}
	return v.Major() == protocolConstraint.Major(), nil
}

// frameAssembly accumulates multi-frame BINARY_DATA_COMMAND/QUERY payloads
// keyed by UserCookie until the terminal frame (symbol == -1) arrives
// (§6).
type frameAssembly struct {
	words []int64
}

// BinaryProcessor reassembles, decompresses, and dispatches binary
// command/query frames (§6, §4.9).
type BinaryProcessor struct {
	decoder *zstd.Decoder
	encoder *zstd.Encoder

	pending map[int64]*frameAssembly
}

func NewBinaryProcessor() (*BinaryProcessor, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("matching: zstd reader: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("matching: zstd writer: %w", err)
	}
	return &BinaryProcessor{decoder: dec, encoder: enc, pending: make(map[int64]*frameAssembly)}, nil
}

func (p *BinaryProcessor) Close() {
	p.decoder.Close()
	p.encoder.Close()
}

// Accept feeds one OrderCommand frame into the reassembly buffer keyed by
// its UserCookie. It returns the decompressed payload and true once the
// terminal frame (SymbolID == -1) completes the sequence.
func (p *BinaryProcessor) Accept(cmd *domain.OrderCommand) ([]byte, bool, error) {
	asm, ok := p.pending[cmd.UserCookie]
	if !ok {
		asm = &frameAssembly{}
		p.pending[cmd.UserCookie] = asm
	}
	asm.words = append(asm.words, cmd.BinaryWords[:]...)

	if cmd.SymbolID != -1 {
		return nil, false, nil
	}
	delete(p.pending, cmd.UserCookie)

	raw := wordsToBytes(asm.words)
	if len(raw) < frameHeaderSize {
		return nil, false, fmt.Errorf("matching: binary frame too short for header")
	}
	decompressedSize := int(binary.LittleEndian.Uint32(raw[0:4]))
	compressedSize := int(binary.LittleEndian.Uint32(raw[4:8]))
	if len(raw) < frameHeaderSize+compressedSize {
		return nil, false, fmt.Errorf("matching: binary frame shorter than declared payload")
	}
	compressed := raw[frameHeaderSize : frameHeaderSize+compressedSize]
	out, err := p.decoder.DecodeAll(compressed, make([]byte, 0, decompressedSize))
	if err != nil {
		return nil, false, fmt.Errorf("matching: zstd decode: %w", err)
	}
	return out, true, nil
}

// frameHeaderSize: 4 bytes decompressed length + 4 bytes compressed
// length, ahead of the zstd payload (§6). Word padding never loses data
// because compressedSize pins the exact byte count to slice out of the
// word-reconstructed buffer.
const frameHeaderSize = 8

// Frames compresses payload and splits it into OrderCommand frames of five
// 64-bit words each, the inverse of Accept, for sending a binary
// query/command to the matching pipeline.
func (p *BinaryProcessor) Frames(symbolForIntermediate domain.SymbolID, userCookie int64, payload []byte) ([]*domain.OrderCommand, error) {
	compressed := p.encoder.EncodeAll(payload, nil)
	header := make([]byte, frameHeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(compressed)))
	raw := append(header, compressed...)

	words := bytesToWords(raw)
	var frames []*domain.OrderCommand
	for i := 0; i < len(words); i += 5 {
		end := i + 5
		if end > len(words) {
			end = len(words)
		}
		cmd := &domain.OrderCommand{
			Type:       domain.CommandBinaryDataCommand,
			SymbolID:   symbolForIntermediate,
			UserCookie: userCookie,
		}
		copy(cmd.BinaryWords[:], words[i:end])
		if end == len(words) {
			cmd.SymbolID = -1
		}
		frames = append(frames, cmd)
	}
	return frames, nil
}

// CorrelationID mints a sortable identifier for a reassembled binary
// query/command, used as its trace/report key (§4.9).
func CorrelationID() string {
	return ksuid.New().String()
}

func wordsToBytes(words []int64) []byte {
	buf := make([]byte, len(words)*8)
	for i, w := range words {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(w))
	}
	return buf
}

func bytesToWords(b []byte) []int64 {
	padded := len(b)
	if padded%8 != 0 {
		padded += 8 - padded%8
	}
	buf := make([]byte, padded)
	copy(buf, b)
	words := make([]int64, padded/8)
	for i := range words {
		words[i] = int64(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return words
}
