package preprocess

import (
	"bytes"
	"fmt"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// decodeCascade is the ordered list of encodings tried on text files that
// are not valid UTF-8.
var decodeCascade = []struct {
	name string
	enc  encoding.Encoding
}{
	// UTF-16 only matches with a BOM; without one, arbitrary single-byte
	// text would decode as garbage code points.
	{"utf-16", unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)},
	{"iso-8859-1", charmap.ISO8859_1},
	{"windows-1252", charmap.Windows1252},
}

// ReadText reads a file as text. UTF-8 is tried first, then UTF-16 and the
// common single-byte encodings; as a last resort invalid UTF-8 sequences are
// replaced.
func ReadText(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return decodeText(raw), nil
}

func decodeText(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}

	for _, candidate := range decodeCascade {
		decoded, err := candidate.enc.NewDecoder().Bytes(raw)
		if err == nil && utf8.Valid(decoded) && !bytes.ContainsRune(decoded, 0) {
			return string(decoded)
		}
	}

	// Replacement decode never fails.
	return string(bytes.ToValidUTF8(raw, []byte("�")))
}
