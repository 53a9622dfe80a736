// Command audioclient streams a WAV file to the ingress server over
// WebSocket in real-time-sized frames and prints the frames echoed back.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"io"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"

	"github.com/Elleo/gst-deepspeech/internal/api/ws"
	"github.com/Elleo/gst-deepspeech/internal/audio"
)

// WAV header is 44 bytes for standard PCM files.
const wavHeaderSize = 44

// 20ms frames at 16kHz 16-bit mono = 640 bytes.
const frameBytes = audio.SampleRate * audio.BytesPerSample * frameMs / 1000
const frameMs = 20

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16kHz 16-bit mono)")
	serverURL := flag.String("server", "ws://localhost:8080/v1/stream", "Ingress WebSocket URL")
	realtime := flag.Bool("realtime", true, "Pace frames at real-time speed")
	flag.Parse()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal("Not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		audioFormat, numChannels, sampleRate, bitsPerSample)

	if audioFormat != 1 {
		log.Fatal("Only PCM format supported")
	}
	if sampleRate != audio.SampleRate {
		log.Printf("Warning: Sample rate is %d Hz, expected %d Hz", sampleRate, audio.SampleRate)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *serverURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	log.Printf("Connected to %s", *serverURL)

	// Print echoed pass-through frames while streaming.
	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if buf, err := ws.DecodeFrame(data); err == nil {
				log.Printf("Echo: ts=%v dur=%v bytes=%d", buf.Timestamp, buf.Duration, len(buf.Data))
			}
		}
	}()

	chunk := make([]byte, frameBytes)
	var frameNum int
	var totalBytes int64
	start := time.Now()

	for {
		n, err := f.Read(chunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read audio: %v", err)
		}

		buf := audio.Buffer{
			Data:      append([]byte(nil), chunk[:n]...),
			Timestamp: time.Duration(frameNum) * frameMs * time.Millisecond,
			Duration:  audio.DurationOf(n),
		}
		if err := conn.Write(ctx, websocket.MessageBinary, ws.EncodeFrame(buf)); err != nil {
			log.Fatalf("Failed to send frame: %v", err)
		}

		frameNum++
		totalBytes += int64(n)
		if frameNum%100 == 0 {
			log.Printf("Sent frame %d (%d bytes total)", frameNum, totalBytes)
		}
		if *realtime {
			time.Sleep(frameMs * time.Millisecond)
		}
	}

	log.Printf("Finished streaming: %d frames, %d bytes in %v", frameNum, totalBytes, time.Since(start))

	// Normal closure signals end-of-stream; the server drains before
	// acknowledging the close.
	if err := conn.Close(websocket.StatusNormalClosure, "eos"); err != nil {
		log.Printf("Close error: %v", err)
	}
	log.Println("Stream closed")
}
