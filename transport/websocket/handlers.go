package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
)

func (that *Server) handleConnect(ctx context.Context, conn *connection, msg *Message) error {
	log := that.logger.With("method", "handleConnect")

	payloadReq, err := decodePayload(msg)
	if err != nil {
		return that.sendErrorResponse(conn, msg.Action, "malformed payload")
	}

	if payloadReq.SessionID != "" && !that.bind(conn, payloadReq.SessionID) {
		return nil
	}

	sessionID := that.sessionOf(conn)

	snapshot, err := that.manager.State(ctx, sessionID)
	if err != nil {
		log.Error("failed to get game state", "sessionID", sessionID, "error", err)
		return that.sendErrorResponse(conn, msg.Action, "failed to load the game")
	}

	if err = that.sendMessage(conn, msg.Action, ResponsePayload{SessionID: sessionID, Game: &snapshot}); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}

	log.Info("successfully connected", "sessionID", sessionID)

	return nil
}

func (that *Server) handleGameTurn(ctx context.Context, conn *connection, msg *Message) error {
	log := that.logger.With("method", "handleGameTurn")

	payloadReq, err := decodePayload(msg)
	if err != nil {
		return that.sendErrorResponse(conn, msg.Action, "malformed payload")
	}

	if payloadReq.Cell == nil {
		return that.sendErrorResponse(conn, msg.Action, fmt.Sprintf("%v: cell", apperror.ErrMissingArgument))
	}

	sessionID := that.sessionOf(conn)

	snapshot, err := that.manager.PlaceMark(ctx, sessionID, *payloadReq.Cell)
	if errors.Is(err, apperror.ErrInvalidCell) {
		return that.sendErrorResponse(conn, msg.Action, apperror.ErrInvalidCell.Error())
	}

	if err != nil {
		log.Error("failed to place mark", "sessionID", sessionID, "error", err)
		return that.sendErrorResponse(conn, msg.Action, "failed to make a turn")
	}

	that.broadcast(sessionID, msg.Action, snapshot)

	return nil
}

func (that *Server) handleGameReset(ctx context.Context, conn *connection, msg *Message) error {
	log := that.logger.With("method", "handleGameReset")

	sessionID := that.sessionOf(conn)

	snapshot, err := that.manager.Reset(ctx, sessionID)
	if err != nil {
		log.Error("failed to reset game", "sessionID", sessionID, "error", err)
		return that.sendErrorResponse(conn, msg.Action, "failed to reset the game")
	}

	that.broadcast(sessionID, msg.Action, snapshot)

	return nil
}

// broadcast sends the snapshot to every connection bound to the session.
func (that *Server) broadcast(sessionID, action string, snapshot entity.Snapshot) {
	log := that.logger.With("method", "broadcast", "sessionID", sessionID)

	message, err := encodeMessage(action, ResponsePayload{SessionID: sessionID, Game: &snapshot})
	if err != nil {
		log.Error("failed to encode message", "error", err)
		return
	}

	for _, peer := range that.peers(sessionID) {
		if err = peer.send(message); err != nil {
			log.Error("failed to send game update", "error", err)
		}
	}
}

func (that *Server) sendMessage(conn *connection, action string, payload ResponsePayload) error {
	message, err := encodeMessage(action, payload)
	if err != nil {
		return err
	}

	if err = conn.send(message); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	return nil
}

func (that *Server) sendErrorResponse(conn *connection, action, errorMsg string) error {
	if err := that.sendMessage(conn, action, ResponsePayload{Error: errorMsg}); err != nil {
		return fmt.Errorf("failed to send error response: %w", err)
	}

	return nil
}

func decodePayload(msg *Message) (RequestPayload, error) {
	var payload RequestPayload
	if len(msg.Payload) == 0 || string(msg.Payload) == "null" {
		return payload, nil
	}

	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return RequestPayload{}, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return payload, nil
}
