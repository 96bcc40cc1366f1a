package websocket

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
)

const (
	opText  byte = 0x1
	opClose byte = 0x8
	opPing  byte = 0x9
	opPong  byte = 0xA

	maxPayloadSize = 64 << 10
)

var (
	errFragmentedFrame = errors.New("fragmented frames are not supported")
	errFrameTooLarge   = errors.New("frame payload is too large")
)

// frame represents a WebSocket frame and its metadata.
type frame struct {
	isFin   bool
	opCode  byte
	mask    []byte // set only for client frames
	payload []byte
}

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type RequestPayload struct {
	SessionID string `json:"session_id,omitempty"`
	Cell      *int   `json:"cell,omitempty"`
}

type ResponsePayload struct {
	SessionID string           `json:"session_id,omitempty"`
	Game      *entity.Snapshot `json:"game,omitempty"`
	Error     string           `json:"error,omitempty"`
}

func encodeMessage(action string, payload ResponsePayload) ([]byte, error) {
	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	response, err := json.Marshal(Message{
		Action:  action,
		Payload: rawPayload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	return response, nil
}

func writeFrame(w *bufio.Writer, frameData frame) error {
	length := uint64(len(frameData.payload))

	header := make([]byte, 2, 14)
	header[0] |= frameData.opCode

	if frameData.isFin {
		header[0] |= 0x80
	}

	if frameData.mask != nil {
		header[1] |= 0x80
	}

	switch {
	case length < 126:
		header[1] |= byte(length)
	case length < 1<<16:
		header[1] |= 126
		header = binary.BigEndian.AppendUint16(header, uint16(length))
	default:
		header[1] |= 127
		header = binary.BigEndian.AppendUint64(header, length)
	}

	payload := frameData.payload
	if frameData.mask != nil {
		header = append(header, frameData.mask...)
		payload = applyMask(append([]byte(nil), payload...), frameData.mask)
	}

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write frame header: %w", err)
	}

	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write frame payload: %w", err)
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %w", err)
	}

	return nil
}

func readFrame(r *bufio.Reader) (frame, error) {
	header := make([]byte, 2)
	if _, err := io.ReadFull(r, header); err != nil {
		return frame{}, fmt.Errorf("failed to read header: %w", err)
	}

	result := frame{
		isFin:  header[0]>>7 == 1,
		opCode: header[0] & 0x0f,
	}

	size, err := readPayloadLength(r, header[1]&0x7f)
	if err != nil {
		return frame{}, err
	}

	if size > maxPayloadSize {
		return frame{}, fmt.Errorf("%w: %d bytes", errFrameTooLarge, size)
	}

	if header[1]>>7 == 1 {
		result.mask = make([]byte, 4)
		if _, err = io.ReadFull(r, result.mask); err != nil {
			return frame{}, fmt.Errorf("failed to read mask: %w", err)
		}
	}

	result.payload = make([]byte, size)
	if _, err = io.ReadFull(r, result.payload); err != nil {
		return frame{}, fmt.Errorf("failed to read payload: %w", err)
	}

	if result.mask != nil {
		applyMask(result.payload, result.mask)
	}

	if !result.isFin || result.opCode == 0 {
		return frame{}, errFragmentedFrame
	}

	return result, nil
}

func readPayloadLength(r *bufio.Reader, payloadLen byte) (uint64, error) {
	switch payloadLen {
	case 126:
		length := make([]byte, 2)
		if _, err := io.ReadFull(r, length); err != nil {
			return 0, fmt.Errorf("failed to read payload length: %w", err)
		}
		return uint64(binary.BigEndian.Uint16(length)), nil
	case 127:
		length := make([]byte, 8)
		if _, err := io.ReadFull(r, length); err != nil {
			return 0, fmt.Errorf("failed to read payload length: %w", err)
		}
		return binary.BigEndian.Uint64(length), nil
	default:
		return uint64(payloadLen), nil
	}
}

func applyMask(payload, mask []byte) []byte {
	for i := range payload {
		payload[i] ^= mask[i%4]
	}

	return payload
}
