package utils

import "io"

type bufferedDestination interface {
	Flush() error
}

type syncedDestination interface {
	Sync() error
}

// FlushingWriter forwards build tool output and pushes every chunk to the terminal before returning.
type FlushingWriter struct {
	destination io.Writer
}

// NewFlushingWriter wraps destination; a nil destination discards output.
func NewFlushingWriter(destination io.Writer) *FlushingWriter {
	if destination == nil {
		destination = io.Discard
	}
	return &FlushingWriter{destination: destination}
}

// Write forwards data and then flushes or syncs the destination when it supports either.
func (writer *FlushingWriter) Write(data []byte) (int, error) {
	bytesWritten, writeError := writer.destination.Write(data)
	if writeError != nil {
		return bytesWritten, writeError
	}
	switch destination := writer.destination.(type) {
	case bufferedDestination:
		return bytesWritten, destination.Flush()
	case syncedDestination:
		// fsync fails on terminals and pipes.
		_ = destination.Sync()
	}
	return bytesWritten, nil
}
