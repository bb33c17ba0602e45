package conversations

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Vasu1712/scenyx-chat/internal/auth"
	"github.com/Vasu1712/scenyx-chat/internal/middleware"
)

// RegisterRoutes registers the chat HTTP endpoints, the socket endpoint and
// the operational endpoints on r. Everything under /api/v1 requires a bearer
// token; the socket authenticates on its own.
func RegisterRoutes(r *mux.Router, handler *Handler, resolver *auth.Resolver, sockets http.Handler) {
	r.HandleFunc("/healthz", Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Handle("/ws", sockets)
	r.HandleFunc("/uploads/{key}", handler.ServeUpload).Methods(http.MethodGet, http.MethodHead)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Authenticate(resolver))

	api.HandleFunc("/conversations", handler.ListConversations).Methods(http.MethodGet)
	api.HandleFunc("/conversations/direct", handler.StartDirect).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/messages", handler.ListMessages).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/pin", handler.SetPinned).Methods(http.MethodPut)
	api.HandleFunc("/conversations/{id}/archive", handler.SetArchived).Methods(http.MethodPut)
	api.HandleFunc("/conversations/{id}/members", handler.ListMembers).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/members", handler.AddMember).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/members/{userId}", handler.RemoveMember).Methods(http.MethodDelete)

	api.HandleFunc("/messages/search", handler.Search).Methods(http.MethodGet)
	api.HandleFunc("/messages/{id}/replies", handler.ListReplies).Methods(http.MethodGet)
	api.HandleFunc("/messages/{id}/replies", handler.Reply).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id}/thread/read", handler.MarkThreadRead).Methods(http.MethodPost)

	api.HandleFunc("/notifications", handler.ListNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{id}/read", handler.MarkNotificationRead).Methods(http.MethodPost)

	api.HandleFunc("/uploads", handler.Upload).Methods(http.MethodPost)
}
