package conversations

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Vasu1712/scenyx-chat/internal/chat"
	"github.com/Vasu1712/scenyx-chat/internal/middleware"
	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/protocol"
	"github.com/Vasu1712/scenyx-chat/internal/storage"
	"github.com/Vasu1712/scenyx-chat/internal/upload"
)

// Handler serves the HTTP side of the chat: history, search, membership,
// notifications and uploads. Live events go over the socket.
type Handler struct {
	Chat    *chat.Service
	Uploads *upload.Store
	// Zero page sizes fall back to the storage defaults.
	DefaultPageSize int
	MaxPageSize     int
}

type failure struct {
	Message string           `json:"message"`
	Code    models.ErrorKind `json:"code"`
}

func respondWithJSON(statusCode int, w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}

func statusFor(err error) int {
	if errors.Is(err, upload.ErrTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	switch models.Classify(err) {
	case models.KindAuthentication:
		return http.StatusUnauthorized
	case models.KindAuthorization:
		return http.StatusForbidden
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindValidation, models.KindUpload:
		return http.StatusBadRequest
	case models.KindRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func failureResponse(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
	}
	respondWithJSON(status, w, failure{Message: models.PublicMessage(err), Code: models.Classify(err)})
}

func actor(r *http.Request) chat.Actor {
	identity, _ := middleware.IdentityFrom(r.Context())
	return chat.Actor{UserID: identity.UserID}
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return models.Invalidf("invalid body: %v", err)
	}
	return nil
}

func (h *Handler) limit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return h.DefaultPageSize, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, models.Invalidf("limit must be a positive number")
	}
	if h.MaxPageSize > 0 && n > h.MaxPageSize {
		n = h.MaxPageSize
	}
	return n, nil
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	list, err := h.Chat.ListConversations(r.Context(), actor(r).UserID)
	if err != nil {
		failureResponse(w, err)
		return
	}
	respondWithJSON(http.StatusOK, w, list)
}

func (h *Handler) StartDirect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SellerID string `json:"sellerId"`
	}
	if err := decodeBody(r, &req); err != nil {
		failureResponse(w, err)
		return
	}
	conv, err := h.Chat.StartDirect(r.Context(), actor(r), req.SellerID)
	if err != nil {
		failureResponse(w, err)
		return
	}
	respondWithJSON(http.StatusOK, w, conv)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit, err := h.limit(r)
	if err != nil {
		failureResponse(w, err)
		return
	}
	q := storage.MessageQuery{Limit: limit}
	if before := r.URL.Query().Get("before"); before != "" {
		q.Before, err = time.Parse(time.RFC3339Nano, before)
		if err != nil {
			failureResponse(w, models.Invalidf("before must be an RFC 3339 timestamp"))
			return
		}
	}
	msgs, err := h.Chat.ListMessages(r.Context(), actor(r).UserID, mux.Vars(r)["id"], q)
	if err != nil {
		failureResponse(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	respondWithJSON(http.StatusOK, w, msgs)
}

type flagRequest struct {
	Value bool `json:"value"`
}

func (h *Handler) SetPinned(w http.ResponseWriter, r *http.Request) {
	var req flagRequest
	if err := decodeBody(r, &req); err != nil {
		failureResponse(w, err)
		return
	}
	if err := h.Chat.SetPinned(r.Context(), actor(r).UserID, mux.Vars(r)["id"], req.Value); err != nil {
		failureResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SetArchived(w http.ResponseWriter, r *http.Request) {
	var req flagRequest
	if err := decodeBody(r, &req); err != nil {
		failureResponse(w, err)
		return
	}
	if err := h.Chat.SetArchived(r.Context(), actor(r).UserID, mux.Vars(r)["id"], req.Value); err != nil {
		failureResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Chat.Members(r.Context(), actor(r).UserID, mux.Vars(r)["id"])
	if err != nil {
		failureResponse(w, err)
		return
	}
	respondWithJSON(http.StatusOK, w, members)
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	in := &protocol.AddMember{}
	if err := decodeBody(r, in); err != nil {
		failureResponse(w, err)
		return
	}
	in.ConversationID = mux.Vars(r)["id"]
	if err := in.Validate(); err != nil {
		failureResponse(w, err)
		return
	}
	p, err := h.Chat.AddMember(r.Context(), actor(r), in)
	if err != nil {
		failureResponse(w, err)
		return
	}
	respondWithJSON(http.StatusCreated, w, p)
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	in := &protocol.RemoveMember{ConversationID: vars["id"], UserID: vars["userId"]}
	if err := h.Chat.RemoveMember(r.Context(), actor(r), in); err != nil {
		failureResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	limit, err := h.limit(r)
	if err != nil {
		failureResponse(w, err)
		return
	}
	msgs, err := h.Chat.Search(r.Context(), actor(r).UserID, r.URL.Query().Get("q"), limit)
	if err != nil {
		failureResponse(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	respondWithJSON(http.StatusOK, w, msgs)
}

func (h *Handler) ListReplies(w http.ResponseWriter, r *http.Request) {
	replies, err := h.Chat.Replies(r.Context(), actor(r).UserID, mux.Vars(r)["id"])
	if err != nil {
		failureResponse(w, err)
		return
	}
	if replies == nil {
		replies = []models.Message{}
	}
	respondWithJSON(http.StatusOK, w, replies)
}

// Reply posts into a thread. It goes through the same path as a socket
// send_message, so the room sees receive_message and thread_reply_received.
func (h *Handler) Reply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content     string              `json:"content"`
		Attachments []models.Attachment `json:"attachments"`
	}
	if err := decodeBody(r, &req); err != nil {
		failureResponse(w, err)
		return
	}
	a := actor(r)
	parentID := mux.Vars(r)["id"]
	_, conv, err := h.Chat.Guard().Message(r.Context(), a.UserID, parentID)
	if err != nil {
		failureResponse(w, err)
		return
	}
	in := &protocol.SendMessage{
		ConversationID: conv.ID,
		Content:        req.Content,
		Attachments:    req.Attachments,
		ReplyTo:        parentID,
	}
	if err := in.Validate(); err != nil {
		failureResponse(w, err)
		return
	}
	msg, err := h.Chat.SendMessage(r.Context(), a, in)
	if err != nil {
		failureResponse(w, err)
		return
	}
	respondWithJSON(http.StatusCreated, w, msg)
}

func (h *Handler) MarkThreadRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.Chat.MarkThreadRead(r.Context(), actor(r).UserID, mux.Vars(r)["id"])
	if err != nil {
		failureResponse(w, err)
		return
	}
	respondWithJSON(http.StatusOK, w, map[string]int{"marked": n})
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := h.limit(r)
	if err != nil {
		failureResponse(w, err)
		return
	}
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	list, err := h.Chat.Notifications(r.Context(), actor(r).UserID, unreadOnly, limit)
	if err != nil {
		failureResponse(w, err)
		return
	}
	respondWithJSON(http.StatusOK, w, list)
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Chat.MarkNotificationRead(r.Context(), actor(r).UserID, mux.Vars(r)["id"]); err != nil {
		failureResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Upload streams the multipart "file" part straight to the upload store.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	// room for the multipart framing around the file
	r.Body = http.MaxBytesReader(w, r.Body, h.Uploads.MaxBytes()+1<<20)
	mr, err := r.MultipartReader()
	if err != nil {
		failureResponse(w, models.Invalidf("expected a multipart upload"))
		return
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			failureResponse(w, models.Invalidf("multipart field \"file\" is required"))
			return
		}
		if err != nil {
			failureResponse(w, errors.Wrap(models.ErrUpload, err.Error()))
			return
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}
		att, err := h.Uploads.Save(r.Context(), part.FileName(), part.Header.Get("Content-Type"), part)
		part.Close()
		if err != nil {
			failureResponse(w, err)
			return
		}
		log.WithFields(log.Fields{"user": actor(r).UserID, "url": att.URL}).Debug("attachment uploaded")
		respondWithJSON(http.StatusCreated, w, att)
		return
	}
}

// ServeUpload serves a stored attachment.
func (h *Handler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	f, err := h.Uploads.Open(mux.Vars(r)["key"])
	if err != nil {
		failureResponse(w, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		failureResponse(w, err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(http.StatusOK, w, map[string]string{"status": "ok"})
}
