package masking

import (
	"bytes"
	"io"
	"sync"
)

// MaskingWriter wraps an io.Writer and masks sensitive values in the output.
// It buffers until a newline so values split across Write calls are still
// masked.
type MaskingWriter struct {
	mu     sync.Mutex
	writer io.Writer
	masker *Masker
	buffer bytes.Buffer
}

// NewMaskingWriter creates a new MaskingWriter that wraps the given writer.
// If masker is nil, writes pass through unchanged.
func NewMaskingWriter(w io.Writer, masker *Masker) *MaskingWriter {
	return &MaskingWriter{writer: w, masker: masker}
}

func (w *MaskingWriter) Write(p []byte) (int, error) {
	if w.masker == nil {
		return w.writer.Write(p)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.buffer.Write(p)
	if err := w.flushLines(); err != nil {
		return len(p), err
	}
	return len(p), nil
}

func (w *MaskingWriter) flushLines() error {
	data := w.buffer.Bytes()
	lastNewline := bytes.LastIndexByte(data, '\n')
	if lastNewline == -1 {
		return nil
	}

	masked := w.masker.MaskBytes(data[:lastNewline+1])
	remaining := bytes.Clone(data[lastNewline+1:])
	if _, err := w.writer.Write(masked); err != nil {
		return err
	}

	w.buffer.Reset()
	w.buffer.Write(remaining)
	return nil
}

// Flush writes any buffered partial line.
func (w *MaskingWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buffer.Len() == 0 {
		return nil
	}
	_, err := w.writer.Write(w.masker.MaskBytes(w.buffer.Bytes()))
	w.buffer.Reset()
	return err
}

// Close flushes any remaining data and closes the underlying writer if it implements io.Closer
func (w *MaskingWriter) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	if closer, ok := w.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
