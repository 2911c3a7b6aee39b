package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"sealchat/internal/domain"
)

type server struct {
	db        stores
	publisher domain.FeedPublisher
	log       zerolog.Logger
}

// ---------- key directory ----------

func (s *server) publishKey(w http.ResponseWriter, r *http.Request) {
	var rec domain.KeyRecord
	if !decode(w, r, &rec) {
		return
	}
	s.respond(w, nil, s.db.PublishKey(r.Context(), rec))
}

func (s *server) replaceKey(w http.ResponseWriter, r *http.Request) {
	var rec domain.KeyRecord
	if !decode(w, r, &rec) {
		return
	}
	s.respond(w, nil, s.db.ReplaceKey(r.Context(), rec))
}

func (s *server) activeKey(w http.ResponseWriter, r *http.Request) {
	user := domain.UserID(mux.Vars(r)["user"])
	rec, found, err := s.db.ActiveKey(r.Context(), user)
	if err == nil && !found {
		err = domain.ErrNotFound
	}
	s.respond(w, rec, err)
}

// ---------- conversations ----------

func (s *server) createConversation(w http.ResponseWriter, r *http.Request) {
	var conv domain.Conversation
	if !decode(w, r, &conv) {
		return
	}
	s.respond(w, nil, s.db.CreateConversation(r.Context(), conv))
}

func (s *server) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.db.GetConversation(r.Context(), domain.ConversationID(mux.Vars(r)["id"]))
	s.respond(w, conv, err)
}

func (s *server) findDirect(w http.ResponseWriter, r *http.Request) {
	a := domain.UserID(r.URL.Query().Get("a"))
	b := domain.UserID(r.URL.Query().Get("b"))
	conv, found, err := s.db.FindDirectConversation(r.Context(), a, b)
	if err == nil && !found {
		err = domain.ErrNotFound
	}
	s.respond(w, conv, err)
}

func (s *server) userConversations(w http.ResponseWriter, r *http.Request) {
	user := domain.UserID(mux.Vars(r)["user"])
	convs, err := s.db.UserConversations(r.Context(), user)
	s.respond(w, convs, err)
}

// ---------- messages ----------

func (s *server) appendMessage(w http.ResponseWriter, r *http.Request) {
	var msg domain.Message
	if !decode(w, r, &msg) {
		return
	}
	stored, err := s.db.AppendMessage(r.Context(), msg)
	if err == nil {
		s.publish(r, domain.MessageEvent{Type: domain.EventInsert, Message: stored})
	}
	s.respond(w, stored, err)
}

func (s *server) getMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := s.db.GetMessage(r.Context(), domain.MessageID(mux.Vars(r)["id"]))
	s.respond(w, msg, err)
}

func (s *server) listMessages(w http.ResponseWriter, r *http.Request) {
	conv := domain.ConversationID(mux.Vars(r)["id"])
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	msgs, err := s.db.Messages(r.Context(), conv, limit)
	s.respond(w, msgs, err)
}

type editRequest struct {
	Ciphertext []byte                   `json:"ciphertext"`
	Keys       map[domain.UserID][]byte `json:"keys,omitempty"`
	EditedAt   time.Time                `json:"edited_at"`
}

func (s *server) editMessage(w http.ResponseWriter, r *http.Request) {
	id := domain.MessageID(mux.Vars(r)["id"])
	var req editRequest
	if !decode(w, r, &req) {
		return
	}
	err := s.db.UpdateCiphertext(r.Context(), id, req.Ciphertext, req.Keys, req.EditedAt)
	s.publishUpdate(r, id, err)
	s.respond(w, nil, err)
}

func (s *server) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id := domain.MessageID(mux.Vars(r)["id"])
	err := s.db.MarkDeleted(r.Context(), id)
	s.publishUpdate(r, id, err)
	s.respond(w, nil, err)
}

type receiptRequest struct {
	At time.Time `json:"at"`
}

func (s *server) markDelivered(w http.ResponseWriter, r *http.Request) {
	id := domain.MessageID(mux.Vars(r)["id"])
	var req receiptRequest
	if !decode(w, r, &req) {
		return
	}
	err := s.db.MarkDelivered(r.Context(), id, req.At)
	s.publishUpdate(r, id, err)
	s.respond(w, nil, err)
}

func (s *server) markRead(w http.ResponseWriter, r *http.Request) {
	id := domain.MessageID(mux.Vars(r)["id"])
	var req receiptRequest
	if !decode(w, r, &req) {
		return
	}
	err := s.db.MarkRead(r.Context(), id, req.At)
	s.publishUpdate(r, id, err)
	s.respond(w, nil, err)
}

// ---------- helpers ----------

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// publishUpdate re-reads the mutated row and fans it out, so feed
// consumers always see the store's authoritative copy.
func (s *server) publishUpdate(r *http.Request, id domain.MessageID, opErr error) {
	if opErr != nil {
		return
	}
	msg, err := s.db.GetMessage(r.Context(), id)
	if err != nil {
		s.log.Warn().Err(err).Str("message", string(id)).Msg("reload for feed failed")
		return
	}
	s.publish(r, domain.MessageEvent{Type: domain.EventUpdate, Message: msg})
}

func (s *server) publish(r *http.Request, event domain.MessageEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(r.Context(), event); err != nil {
		s.log.Warn().Err(err).Str("message", string(event.Message.ID)).Msg("feed publish failed")
	}
}

func (s *server) respond(w http.ResponseWriter, body any, err error) {
	if err != nil {
		var capErr *domain.CapacityExceededError
		switch {
		case errors.Is(err, domain.ErrNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, domain.ErrKeyRecordExists):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, domain.ErrWindowExpired):
			http.Error(w, err.Error(), http.StatusGone)
		case errors.Is(err, domain.ErrNotDelivered):
			http.Error(w, err.Error(), http.StatusPreconditionFailed)
		case errors.As(err, &capErr):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			s.log.Error().Err(err).Msg("request failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	if body == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
