package fallback

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"hash/crc32"
)

const (
	seedLen    = 16
	seedMarker = "mediagen-seed"
)

var (
	pngSignature = []byte("\x89PNG\r\n\x1a\n")
	gifSignature = []byte("GIF8")

	// ErrNoSeed is returned by Decode for data that is not a placeholder.
	ErrNoSeed = errors.New("fallback: no placeholder seed found")
)

// Decode returns the seed embedded in a placeholder produced by this package.
// Two placeholders with the same seed depict the same content.
func Decode(data []byte) (string, error) {
	if !bytes.HasPrefix(data, pngSignature) && !bytes.HasPrefix(data, gifSignature) {
		return "", ErrNoSeed
	}
	needle := []byte(seedMarker + "\x00")
	idx := bytes.Index(data, needle)
	if idx < 0 {
		return "", ErrNoSeed
	}
	start := idx + len(needle)
	if start+seedLen > len(data) {
		return "", ErrNoSeed
	}
	seed := string(data[start : start+seedLen])
	if _, err := hex.DecodeString(seed); err != nil {
		return "", ErrNoSeed
	}
	return seed, nil
}

// embedPNGSeed inserts a tEXt chunk right after IHDR.
func embedPNGSeed(data []byte, seed string) ([]byte, error) {
	const ihdrEnd = 8 + 4 + 4 + 13 + 4
	if len(data) < ihdrEnd || !bytes.HasPrefix(data, pngSignature) {
		return nil, errors.New("fallback: malformed png")
	}
	payload := append([]byte(seedMarker+"\x00"), seed...)

	chunk := make([]byte, 0, 12+len(payload))
	chunk = binary.BigEndian.AppendUint32(chunk, uint32(len(payload)))
	chunk = append(chunk, "tEXt"...)
	chunk = append(chunk, payload...)
	chunk = binary.BigEndian.AppendUint32(chunk, crc32.ChecksumIEEE(chunk[4:]))

	out := make([]byte, 0, len(data)+len(chunk))
	out = append(out, data[:ihdrEnd]...)
	out = append(out, chunk...)
	out = append(out, data[ihdrEnd:]...)
	return out, nil
}

// embedGIFSeed inserts a comment extension after the screen descriptor and
// optional global color table.
func embedGIFSeed(data []byte, seed string) ([]byte, error) {
	const headerEnd = 6 + 7
	if len(data) < headerEnd || !bytes.HasPrefix(data, gifSignature) {
		return nil, errors.New("fallback: malformed gif")
	}
	offset := headerEnd
	if packed := data[10]; packed&0x80 != 0 {
		offset += 3 * (1 << ((packed & 0x07) + 1))
	}
	if offset > len(data) {
		return nil, errors.New("fallback: malformed gif")
	}
	payload := append([]byte(seedMarker+"\x00"), seed...)
	ext := []byte{0x21, 0xFE, byte(len(payload))}
	ext = append(ext, payload...)
	ext = append(ext, 0x00)

	out := make([]byte, 0, len(data)+len(ext))
	out = append(out, data[:offset]...)
	out = append(out, ext...)
	out = append(out, data[offset:]...)
	return out, nil
}
