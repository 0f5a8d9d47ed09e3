package orch

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

const (
	EventReceiveOffer        = "ReceiveOffer"
	EventReceiveAnswer       = "ReceiveAnswer"
	EventReceiveIceCandidate = "ReceiveIceCandidate"
)

type offerRelay struct {
	CallerID domain.UserID   `json:"callerId"`
	Offer    json.RawMessage `json:"offer"`
}

type answerRelay struct {
	CallerID domain.UserID   `json:"callerId"`
	Answer   json.RawMessage `json:"answer"`
}

type candidateRelay struct {
	CallerID  domain.UserID `json:"callerId"`
	Candidate string        `json:"candidate"`
}

func (o *Orchestrator) SendOffer(ctx context.Context, id core.ConnectionID, target domain.UserID, offer json.RawMessage) (RouteResult, error) {
	return o.relay(id, target, "offer", func(caller domain.UserID) (core.Outbound, error) {
		if err := o.Validator.ValidateOffer(offer); err != nil {
			return core.Outbound{}, err
		}
		return core.Outbound{Type: EventReceiveOffer, Data: offerRelay{CallerID: caller, Offer: offer}}, nil
	})
}

func (o *Orchestrator) SendAnswer(ctx context.Context, id core.ConnectionID, target domain.UserID, answer json.RawMessage) (RouteResult, error) {
	return o.relay(id, target, "answer", func(caller domain.UserID) (core.Outbound, error) {
		if err := o.Validator.ValidateAnswer(answer); err != nil {
			return core.Outbound{}, err
		}
		return core.Outbound{Type: EventReceiveAnswer, Data: answerRelay{CallerID: caller, Answer: answer}}, nil
	})
}

// SendIceCandidate relays a candidate serialized as a JSON string. Malformed JSON is
// rejected before anything reaches the transport.
func (o *Orchestrator) SendIceCandidate(ctx context.Context, id core.ConnectionID, target domain.UserID, candidate string) (RouteResult, error) {
	return o.relay(id, target, "candidate", func(caller domain.UserID) (core.Outbound, error) {
		if err := o.Validator.ValidateCandidate(candidate); err != nil {
			return core.Outbound{}, err
		}
		return core.Outbound{Type: EventReceiveIceCandidate, Data: candidateRelay{CallerID: caller, Candidate: candidate}}, nil
	})
}

// relay validates first, then resolves the target. A target without a connection on
// this instance is a RoutingMiss: nothing is sent and no error is returned.
func (o *Orchestrator) relay(id core.ConnectionID, target domain.UserID, kind string, build func(caller domain.UserID) (core.Outbound, error)) (RouteResult, error) {
	p := o.peer(id)
	if p == nil {
		return RoutingMiss, domain.Validation("unknown connection")
	}
	if !domain.ValidUserID(target) {
		return RoutingMiss, domain.Validation("invalid target user id")
	}
	msg, err := build(p.user)
	if err != nil {
		return RoutingMiss, err
	}

	targetConn, ok := o.Registry.GetConnectionIdForUser(target)
	if !ok {
		o.Metrics.RoutingMisses.WithLabelValues(kind).Inc()
		o.Log.Debug().Str("conn", string(id)).Str("target", string(target)).Str("kind", kind).Msg("routing miss")
		return RoutingMiss, nil
	}
	o.sendTo(targetConn, msg)
	o.Metrics.Relayed.WithLabelValues(kind).Inc()
	return Routed, nil
}
