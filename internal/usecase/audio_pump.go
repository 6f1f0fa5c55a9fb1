package usecase

import (
	"errors"
	"io"
	"os"

	"vochat/internal/domain"
	"vochat/internal/ports"
)

const minChunkSize = 256

// chunkSizeFor returns the byte size of roughly 100ms of 16-bit PCM.
func chunkSizeFor(cfg ports.AudioConfig) int {
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels := cfg.Channels
	if channels <= 0 {
		channels = 1
	}
	size := sampleRate * channels * 2 / 10
	if size < minChunkSize {
		return minChunkSize
	}
	return size
}

// pumpAudioChunks forwards capture output to the stream until the capture
// ends, then half-closes the stream so CloseStream follows the last chunk.
func pumpAudioChunks(
	audio ports.AudioSession,
	stream ports.StreamingSession,
	chunkSize int,
	onErr func(error),
	done chan struct{},
) {
	defer close(done)
	defer func() { _ = stream.CloseSend() }()

	if chunkSize < minChunkSize {
		chunkSize = minChunkSize
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := io.ReadFull(audio, buf)
		if n > 0 {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				onErr(classifyTransport("failed to stream audio", sendErr))
				return
			}
		}
		if err != nil {
			if !endOfCapture(err) {
				onErr(domain.NewError(domain.KindTransport, "audio capture error", err))
			}
			return
		}
	}
}

func endOfCapture(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, os.ErrClosed)
}

func classifyTransport(message string, err error) error {
	if domain.KindOf(err) != "" {
		return err
	}
	return domain.NewError(domain.KindTransport, message, err)
}
