package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	OpJoinRoom         = "JoinRoom"
	OpLeaveRoom        = "LeaveRoom"
	OpSendOffer        = "SendOffer"
	OpSendAnswer       = "SendAnswer"
	OpSendIceCandidate = "SendIceCandidate"
	OpSendMessage      = "SendMessage"
	OpPing             = "ping"
	OpWhoAmI           = "whoami"
)

var (
	errBadPayload = domain.Validation("bad_payload")
	errUnknownOp  = domain.Validation("unknown operation")
)

type errorReply struct {
	Type      string           `json:"type"`
	Op        string           `json:"op,omitempty"`
	RequestID string           `json:"requestId,omitempty"`
	Code      domain.ErrorCode `json:"code"`
	Error     string           `json:"error"`
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, op, requestID string, err error) {
	ctl.sendJSON(c, errorReply{
		Type:      "error",
		Op:        op,
		RequestID: requestID,
		Code:      domain.CodeOf(err),
		Error:     domain.PublicMessage(err),
	})
}

func (ctl *SignalWSController) handleJoin(ctx context.Context, id core.ConnectionID, c *WsSignalConn, env inbound) {
	// the engine replies with ExistingParticipants itself
	if _, err := ctl.Orch.JoinRoom(ctx, id, domain.RoomID(env.RoomID)); err != nil {
		ctl.sendError(c, env.Type, env.RequestID, err)
	}
}

func (ctl *SignalWSController) handleLeave(ctx context.Context, id core.ConnectionID, c *WsSignalConn, env inbound) {
	if _, err := ctl.Orch.LeaveRoom(ctx, id); err != nil {
		ctl.sendError(c, env.Type, env.RequestID, err)
	}
}

func (ctl *SignalWSController) handleOffer(ctx context.Context, id core.ConnectionID, c *WsSignalConn, env inbound) {
	res, err := ctl.Orch.SendOffer(ctx, id, domain.UserID(env.TargetUserID), env.Offer)
	ctl.afterRelay(c, id, env, res, err)
}

func (ctl *SignalWSController) handleAnswer(ctx context.Context, id core.ConnectionID, c *WsSignalConn, env inbound) {
	res, err := ctl.Orch.SendAnswer(ctx, id, domain.UserID(env.TargetUserID), env.Answer)
	ctl.afterRelay(c, id, env, res, err)
}

func (ctl *SignalWSController) handleCandidate(ctx context.Context, id core.ConnectionID, c *WsSignalConn, env inbound) {
	res, err := ctl.Orch.SendIceCandidate(ctx, id, domain.UserID(env.TargetUserID), candidateText(env.Candidate))
	ctl.afterRelay(c, id, env, res, err)
}

// candidateText accepts the candidate either as a JSON-encoded string or as an
// inline JSON value and returns the serialized candidate.
func candidateText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (ctl *SignalWSController) afterRelay(c *WsSignalConn, id core.ConnectionID, env inbound, res orch.RouteResult, err error) {
	if err != nil {
		ctl.sendError(c, env.Type, env.RequestID, err)
		return
	}
	log.Debug().Str("module", "signal").Str("conn", string(id)).Str("op", env.Type).
		Str("target", env.TargetUserID).Str("result", res.String()).Msg("relay")
}

func (ctl *SignalWSController) handleMessage(ctx context.Context, id core.ConnectionID, c *WsSignalConn, env inbound) {
	if _, err := ctl.Orch.SendMessage(ctx, id, env.Content); err != nil {
		ctl.sendError(c, env.Type, env.RequestID, err)
	}
}

func (ctl *SignalWSController) handlePing(c *WsSignalConn) {
	ctl.sendJSON(c, core.Outbound{Type: "pong"})
}

func (ctl *SignalWSController) handleWhoAmI(ctx context.Context, id core.ConnectionID, c *WsSignalConn, env inbound) {
	who, err := ctl.Orch.WhoAmI(ctx, id)
	if err != nil {
		ctl.sendError(c, env.Type, env.RequestID, err)
		return
	}
	ctl.sendJSON(c, core.Outbound{Type: "whoami", Data: who})
}
