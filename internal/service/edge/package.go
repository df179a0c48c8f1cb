package edge

import (
	"bytes"
	"time"

	"github.com/klauspost/compress/zip"
)

// zipEpoch はアーカイブ内のタイムスタンプを固定して同じコードから同じzipを作るための値
var zipEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Package はコードを index.js として含むzipアーカイブを作成します
func Package(code string) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	header := &zip.FileHeader{
		Name:     "index.js",
		Method:   zip.Deflate,
		Modified: zipEpoch,
	}
	header.SetMode(0o644)

	f, err := w.CreateHeader(header)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write([]byte(code)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
