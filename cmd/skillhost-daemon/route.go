// Copyright 2026 The Skillhost Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/hermeskit/skillhost/hermes"
	"github.com/hermeskit/skillhost/skill"
	"github.com/hermeskit/skillhost/skillrpc"
)

// workItem is one message queued for a skill's worker: the RPC
// request plus the trigger's session and site ids, which directives
// default from so a skill may answer without repeating them.
type workItem struct {
	request   *skillrpc.Request
	sessionID string
	siteID    string
}

// dispatch classifies one inbound message. The echo filter drops the
// server's own publications before they re-enter routing; session
// topics are matched before intents so an overlapping intents filter
// cannot swallow them.
func (s *server) dispatch(ctx context.Context, message busMessage) {
	if s.echoes.Observe(message.topic, message.payload) {
		s.logger.Debug("dropping echoed publication", "topic", message.topic)
		return
	}
	switch message.topic {
	case s.topics.StartSession, s.topics.ContinueSession, s.topics.EndSession:
		s.routeSessionEvent(message)
		return
	}
	if s.topics.MatchesIntent(message.topic) {
		s.routeIntent(message)
		return
	}
	s.logger.Debug("message on unhandled topic", "topic", message.topic)
}

// routeIntent resolves the owning skill from the declared intents and
// enqueues the message on its worker. Intents nobody declared are
// dropped quietly: other handlers on the bus may own them.
func (s *server) routeIntent(message busMessage) {
	intentName, ok := s.topics.IntentName(message.topic)
	if !ok {
		s.logger.Debug("intent topic without a name", "topic", message.topic)
		return
	}

	var intent hermes.Intent
	if err := json.Unmarshal(message.payload, &intent); err != nil {
		s.logger.Warn("malformed intent payload", "topic", message.topic, "error", err)
		return
	}
	if intent.Intent.IntentName == "" {
		intent.Intent.IntentName = intentName
	}

	s.mu.Lock()
	owner := s.owners[intentName]
	rs := s.running[owner]
	s.mu.Unlock()
	if rs == nil {
		s.logger.Debug("no skill handles intent", "intent", intentName)
		return
	}

	s.enqueue(owner, rs, workItem{
		request: &skillrpc.Request{
			Action: skillrpc.ActionIntent,
			Intent: &intent,
		},
		sessionID: intent.SessionID,
		siteID:    intent.SiteID,
	})
}

// routeSessionEvent handles the three dialogue-manager topics.
func (s *server) routeSessionEvent(message busMessage) {
	switch message.topic {
	case s.topics.StartSession:
		s.handleStartSession(message.payload)
	case s.topics.ContinueSession:
		s.handleContinueSession(message.payload)
	case s.topics.EndSession:
		s.handleEndSession(message.payload)
	}
}

// handleStartSession reconciles an externally observed session open.
// Only opens addressed to a hosted skill (customData carries the
// owner) with an explicit session id are tracked; everything else on
// the bus is other components' business.
func (s *server) handleStartSession(payload []byte) {
	var start hermes.StartSession
	if err := json.Unmarshal(payload, &start); err != nil {
		s.logger.Warn("malformed startSession payload", "error", err)
		return
	}

	s.mu.Lock()
	rs := s.running[start.CustomData]
	s.mu.Unlock()
	if rs == nil || start.SessionID == "" {
		s.logger.Debug("startSession not addressed to a hosted skill",
			"session", start.SessionID,
			"custom_data", start.CustomData,
		)
		return
	}

	if err := s.sessions.open(start.SessionID, start.CustomData); err != nil {
		s.logger.Warn("session conflict ignored",
			"session", start.SessionID,
			"skill", start.CustomData,
			"error", err,
		)
		return
	}

	s.enqueue(start.CustomData, rs, workItem{
		request: &skillrpc.Request{
			Action: skillrpc.ActionSessionContinue,
			Session: &skillrpc.SessionEvent{
				SessionID:  start.SessionID,
				SiteID:     start.SiteID,
				Text:       start.Init.Text,
				CustomData: start.CustomData,
			},
		},
		sessionID: start.SessionID,
		siteID:    start.SiteID,
	})
}

func (s *server) handleContinueSession(payload []byte) {
	var cont hermes.ContinueSession
	if err := json.Unmarshal(payload, &cont); err != nil {
		s.logger.Warn("malformed continueSession payload", "error", err)
		return
	}

	owner, ok := s.sessions.ownerOf(cont.SessionID)
	if !ok {
		s.logger.Debug("continueSession for unknown session", "session", cont.SessionID)
		return
	}
	s.mu.Lock()
	rs := s.running[owner]
	s.mu.Unlock()
	if rs == nil {
		s.logger.Debug("session owner no longer hosted", "session", cont.SessionID, "skill", owner)
		return
	}

	s.enqueue(owner, rs, workItem{
		request: &skillrpc.Request{
			Action: skillrpc.ActionSessionContinue,
			Session: &skillrpc.SessionEvent{
				SessionID:  cont.SessionID,
				SiteID:     cont.SiteID,
				Text:       cont.Text,
				CustomData: cont.CustomData,
			},
		},
		sessionID: cont.SessionID,
		siteID:    cont.SiteID,
	})
}

// handleEndSession notifies the owner and drops the table entry. The
// notification is enqueued before the entry closes so the skill still
// sees the session as its own.
func (s *server) handleEndSession(payload []byte) {
	var end hermes.EndSession
	if err := json.Unmarshal(payload, &end); err != nil {
		s.logger.Warn("malformed endSession payload", "error", err)
		return
	}

	owner, ok := s.sessions.ownerOf(end.SessionID)
	if !ok {
		s.logger.Debug("endSession for unknown session", "session", end.SessionID)
		return
	}
	s.mu.Lock()
	rs := s.running[owner]
	s.mu.Unlock()
	if rs != nil {
		s.enqueue(owner, rs, workItem{
			request: &skillrpc.Request{
				Action: skillrpc.ActionSessionEnded,
				Session: &skillrpc.SessionEvent{
					SessionID: end.SessionID,
					SiteID:    end.SiteID,
					Text:      end.Text,
				},
			},
			sessionID: end.SessionID,
			siteID:    end.SiteID,
		})
	}
	s.sessions.close(end.SessionID)
}

// enqueue hands a message to the skill's worker. A skill that is not
// ready receives nothing; a full queue drops the message rather than
// queueing without bound.
func (s *server) enqueue(name string, rs *runningSkill, item workItem) {
	if state := rs.proc.State(); state != skill.StateReady {
		s.logger.Debug("skill not ready, dropping message",
			"skill", name,
			"action", item.request.Action,
			"state", string(state),
		)
		return
	}
	select {
	case rs.queue <- item:
	default:
		s.logger.Warn("skill queue full, dropping message",
			"skill", name,
			"action", item.request.Action,
		)
	}
}

// runWorker serializes RPC to one skill.
func (s *server) runWorker(ctx context.Context, name string, rs *runningSkill) {
	defer close(rs.workerDone)
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-rs.queue:
			s.deliver(ctx, name, rs, item)
		}
	}
}

// deliver performs one RPC to the skill and applies the response. A
// transport failure marks the skill failed and stops routing to it;
// an application failure (ok=false) is the skill's own business and
// leaves it healthy.
func (s *server) deliver(ctx context.Context, name string, rs *runningSkill, item workItem) {
	if rs.proc.State() != skill.StateReady {
		return
	}

	response, err := rs.proc.Call(ctx, item.request)
	if err != nil {
		if ctx.Err() != nil {
			// Worker cancelled mid-call: the message is dropped, the
			// skill is not blamed.
			return
		}
		s.logger.Warn("skill rpc failed, marking failed",
			"skill", name,
			"action", item.request.Action,
			"error", err,
		)
		rs.proc.MarkFailed(err)
		if closed := s.sessions.closeAll(name); len(closed) > 0 {
			s.logger.Info("closed sessions of failed skill", "skill", name, "sessions", len(closed))
		}
		s.writeState()
		return
	}

	if !response.OK {
		s.logger.Warn("skill reported error",
			"skill", name,
			"action", item.request.Action,
			"error", response.Error,
		)
		return
	}

	for _, directive := range response.Directives {
		s.applyDirective(name, item, directive)
	}
}

// applyDirective turns one skill directive into a bus publication and
// the matching session-table update.
func (s *server) applyDirective(name string, item workItem, directive skillrpc.Directive) {
	switch directive.Kind {
	case skillrpc.DirectiveKindContinueSession:
		if directive.Continue == nil {
			s.logger.Warn("continue_session directive without body", "skill", name)
			return
		}
		body := *directive.Continue
		if body.SessionID == "" {
			body.SessionID = item.sessionID
		}
		if body.SessionID == "" {
			s.logger.Warn("continue_session directive without session", "skill", name)
			return
		}
		if body.SiteID == "" {
			body.SiteID = s.defaultSiteID(item)
		}
		if err := s.sessions.open(body.SessionID, name); err != nil {
			s.logger.Warn("session conflict ignored", "session", body.SessionID, "skill", name, "error", err)
		}
		s.publish(s.topics.ContinueSession, body)

	case skillrpc.DirectiveKindEndSession:
		if directive.End == nil {
			s.logger.Warn("end_session directive without body", "skill", name)
			return
		}
		body := *directive.End
		if body.SessionID == "" {
			body.SessionID = item.sessionID
		}
		if body.SessionID == "" {
			s.logger.Warn("end_session directive without session", "skill", name)
			return
		}
		if body.SiteID == "" {
			body.SiteID = s.defaultSiteID(item)
		}
		s.publish(s.topics.EndSession, body)
		s.sessions.close(body.SessionID)

	case skillrpc.DirectiveKindStartSession:
		if directive.Start == nil {
			s.logger.Warn("start_session directive without body", "skill", name)
			return
		}
		body := *directive.Start
		if body.SessionID == "" {
			body.SessionID = item.sessionID
		}
		if body.SessionID == "" {
			body.SessionID = uuid.NewString()
		}
		if body.SiteID == "" {
			body.SiteID = s.defaultSiteID(item)
		}
		if body.CustomData == "" {
			// The owner tag: lets the startSession echo and any
			// external observer attribute the session to this skill.
			body.CustomData = name
		}
		if err := s.sessions.open(body.SessionID, name); err != nil {
			s.logger.Warn("session conflict ignored", "session", body.SessionID, "skill", name, "error", err)
		}
		s.publish(s.topics.StartSession, body)

	case skillrpc.DirectiveKindSay:
		if directive.Say == nil {
			s.logger.Warn("say directive without body", "skill", name)
			return
		}
		body := *directive.Say
		if body.SiteID == "" {
			body.SiteID = s.defaultSiteID(item)
		}
		s.publish(hermes.TopicSay, body)

	default:
		s.logger.Warn("unknown directive kind", "skill", name, "kind", directive.Kind)
	}
}

// defaultSiteID picks the site for an outbound message: the trigger's
// site when known, the configured site otherwise.
func (s *server) defaultSiteID(item workItem) string {
	if item.siteID != "" {
		return item.siteID
	}
	return s.cfg.SiteID
}

// publish marshals and sends one outbound message, dropping it with a
// warning when the broker is away.
func (s *server) publish(topic string, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("marshaling outbound message", "topic", topic, "error", err)
		return
	}
	if err := s.publishRaw(topic, payload); err != nil {
		s.logger.Warn("dropping outbound message", "topic", topic, "error", err)
	}
}

// publishRaw sends pre-encoded payload. Publications on subscribed
// topics are remembered first so their broker echoes do not re-enter
// routing.
func (s *server) publishRaw(topic string, payload []byte) error {
	if s.subscribedTopic(topic) {
		s.echoes.Remember(topic, payload)
	}
	return s.publishFunc(topic, payload)
}

// subscribedTopic reports whether the server's own subscriptions
// would deliver a publication on topic back to it.
func (s *server) subscribedTopic(topic string) bool {
	switch topic {
	case s.topics.StartSession, s.topics.ContinueSession, s.topics.EndSession:
		return true
	}
	return s.topics.MatchesIntent(topic)
}
