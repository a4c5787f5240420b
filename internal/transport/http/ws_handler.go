package http

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"neonquiz/internal/app"
	"neonquiz/internal/domain"
)

// WSHandler upgrades connections and maps named client events onto the quiz
// state machine. Team devices, the main screen, and the admin console all
// speak the same channel; the server does not care which role a connection
// plays.
type WSHandler struct {
	quiz     *app.Quiz
	upgrader websocket.Upgrader
}

func NewWSHandler(quiz *app.Quiz) *WSHandler {
	return &WSHandler{
		quiz: quiz,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type adminAction struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type submitAnswerPayload struct {
	TeamID string `json:"teamId"`
	Answer string `json:"answer"`
}

// ServeWS runs one client connection: an initial state snapshot, then live
// updates, then the inbound event loop until the peer goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// The session id is the connection's identity; registering a team binds
	// the team to it until the team registers again elsewhere.
	sessionID := uuid.NewString()

	updates, cancel := h.quiz.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				msg := translateEvent(update)
				select {
				case send <- msg:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "registerTeam":
			var name string
			if err := json.Unmarshal(inbound.Payload, &name); err != nil {
				log.Printf("ws: bad registerTeam payload: %v", err)
				continue
			}
			team, err := h.quiz.RegisterTeam(name, sessionID)
			if err != nil {
				log.Printf("ws: register team %q: %v", name, err)
				continue
			}
			select {
			case send <- outboundMessage[any]{Type: "teamRegistered", Payload: team}:
			case <-writerDone:
			}
		case "adminAction":
			var action adminAction
			if err := json.Unmarshal(inbound.Payload, &action); err != nil {
				log.Printf("ws: bad adminAction payload: %v", err)
				continue
			}
			cmd, err := decodeAdminCommand(action)
			if err != nil {
				log.Printf("ws: %v", err)
				continue
			}
			h.quiz.Apply(cmd)
		case "buzz":
			var teamID string
			if err := json.Unmarshal(inbound.Payload, &teamID); err != nil {
				log.Printf("ws: bad buzz payload: %v", err)
				continue
			}
			h.quiz.Buzz(teamID)
		case "submitAnswer":
			var payload submitAnswerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				log.Printf("ws: bad submitAnswer payload: %v", err)
				continue
			}
			h.quiz.SubmitAnswer(payload.TeamID, payload.Answer)
		default:
			log.Printf("ws: unsupported message type %q", inbound.Type)
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func translateEvent(ev app.Event) outboundMessage[any] {
	if ev.Effect != nil {
		return outboundMessage[any]{Type: "buzzerEffect", Payload: ev.Effect}
	}
	return outboundMessage[any]{Type: "stateUpdate", Payload: ev.State}
}

// decodeAdminCommand turns the wire {type,payload} form into the closed
// command set. Unknown kinds and malformed payloads are reported, not
// applied; the state machine only ever sees valid commands.
func decodeAdminCommand(action adminAction) (domain.Command, error) {
	switch action.Type {
	case "START_ROUND":
		var payload struct {
			Round int `json:"round"`
		}
		if err := json.Unmarshal(action.Payload, &payload); err != nil {
			return nil, fmt.Errorf("bad START_ROUND payload: %w", err)
		}
		round := domain.Round(payload.Round)
		if !round.Valid() {
			return nil, fmt.Errorf("unknown round ordinal %d", payload.Round)
		}
		return domain.StartRound{Round: round}, nil
	case "NEXT_QUESTION":
		return domain.NextQuestion{}, nil
	case "ADJUST_SCORE":
		var payload struct {
			TeamID string  `json:"teamId"`
			Amount float64 `json:"amount"`
		}
		if err := json.Unmarshal(action.Payload, &payload); err != nil {
			return nil, fmt.Errorf("bad ADJUST_SCORE payload: %w", err)
		}
		return domain.AdjustScore{TeamID: payload.TeamID, Amount: payload.Amount}, nil
	case "RESET_BUZZER":
		return domain.ResetBuzzer{}, nil
	case "PASS_CONTROL":
		return domain.PassControl{}, nil
	case "TOGGLE_RAPID_FIRE":
		var payload struct {
			Running bool `json:"running"`
		}
		if err := json.Unmarshal(action.Payload, &payload); err != nil {
			return nil, fmt.Errorf("bad TOGGLE_RAPID_FIRE payload: %w", err)
		}
		return domain.ToggleRapidFire{Running: payload.Running}, nil
	case "RESET_QUIZ":
		return domain.ResetQuiz{}, nil
	default:
		return nil, fmt.Errorf("unsupported admin action %q", action.Type)
	}
}
