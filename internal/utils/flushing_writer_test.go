package utils_test

import (
	"bufio"
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opentripplanner/custom-release/internal/utils"
)

type countingBufferedWriter struct {
	contents   bytes.Buffer
	flushError error
	flushes    int
}

func (writer *countingBufferedWriter) Write(data []byte) (int, error) {
	return writer.contents.Write(data)
}

func (writer *countingBufferedWriter) Flush() error {
	writer.flushes++
	return writer.flushError
}

type failingSyncWriter struct {
	contents bytes.Buffer
	syncs    int
}

func (writer *failingSyncWriter) Write(data []byte) (int, error) {
	return writer.contents.Write(data)
}

func (writer *failingSyncWriter) Sync() error {
	writer.syncs++
	return errors.New("sync /dev/stdout: invalid argument")
}

func TestFlushingWriterFlushesBufferedDestination(testInstance *testing.T) {
	testCases := []struct {
		name          string
		flushError    error
		expectedError string
	}{
		{name: "flushed"},
		{name: "flush_failure", flushError: errors.New("broken pipe"), expectedError: "broken pipe"},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			destination := &countingBufferedWriter{flushError: testCase.flushError}
			writer := utils.NewFlushingWriter(destination)

			line := "[INFO] BUILD SUCCESS\n"
			bytesWritten, writeError := writer.Write([]byte(line))
			require.Equal(testInstance, len(line), bytesWritten)
			require.Equal(testInstance, line, destination.contents.String())
			require.Equal(testInstance, 1, destination.flushes)
			if testCase.expectedError == "" {
				require.NoError(testInstance, writeError)
				return
			}
			require.EqualError(testInstance, writeError, testCase.expectedError)
		})
	}
}

func TestFlushingWriterIgnoresSyncFailures(testInstance *testing.T) {
	destination := &failingSyncWriter{}
	writer := utils.NewFlushingWriter(destination)

	for _, line := range []string{"[INFO] Scanning for projects...\n", "[INFO] Building otp 2.9.0-entur-12\n"} {
		_, writeError := writer.Write([]byte(line))
		require.NoError(testInstance, writeError)
	}
	require.Equal(testInstance, 2, destination.syncs)
	require.Contains(testInstance, destination.contents.String(), "Building otp 2.9.0-entur-12")
}

func TestFlushingWriterEmptiesBufioWriter(testInstance *testing.T) {
	var target bytes.Buffer
	writer := utils.NewFlushingWriter(bufio.NewWriterSize(&target, 4096))

	_, writeError := writer.Write([]byte("[INFO] Tests run: 12, Failures: 0\n"))
	require.NoError(testInstance, writeError)
	require.Equal(testInstance, "[INFO] Tests run: 12, Failures: 0\n", target.String())
}

func TestFlushingWriterDiscardsWithoutDestination(testInstance *testing.T) {
	bytesWritten, writeError := utils.NewFlushingWriter(nil).Write([]byte("ignored"))
	require.NoError(testInstance, writeError)
	require.Equal(testInstance, len("ignored"), bytesWritten)
}
