package app

import (
	"bytes"

	"github.com/ledongthuc/pdf"
)

var pdfMagic = []byte("%PDF-")

func isPDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}

// pageCount returns 0 when the document cannot be parsed. The parser panics on
// some malformed cross-reference tables, so that is treated the same way.
func pageCount(data []byte) (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return r.NumPage()
}
