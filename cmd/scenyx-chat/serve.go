package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Vasu1712/scenyx-chat/internal/access"
	"github.com/Vasu1712/scenyx-chat/internal/api/conversations"
	"github.com/Vasu1712/scenyx-chat/internal/cache"
	"github.com/Vasu1712/scenyx-chat/internal/chat"
	"github.com/Vasu1712/scenyx-chat/internal/flags"
	"github.com/Vasu1712/scenyx-chat/internal/middleware"
	"github.com/Vasu1712/scenyx-chat/internal/session"
	"github.com/Vasu1712/scenyx-chat/internal/storage"
	"github.com/Vasu1712/scenyx-chat/internal/storage/cached"
	"github.com/Vasu1712/scenyx-chat/internal/upload"
	"github.com/Vasu1712/scenyx-chat/internal/ws"
)

const shutdownTimeout = 10 * time.Second

type ServeFlags struct {
	ServerFlags *flags.ServerFlags
	DBFlags     *flags.PostgresFlags
	AuthFlags   *flags.AuthFlags
	CacheFlags  *flags.CacheFlags
	ConfigFlags *flags.ConfigFlags
}

func NewServeFlags() *ServeFlags {
	return &ServeFlags{
		ServerFlags: flags.NewServerFlags(),
		DBFlags:     flags.NewPostgresDatabaseFlags(),
		AuthFlags:   flags.NewAuthFlags(),
		CacheFlags:  flags.NewCacheFlags(),
		ConfigFlags: flags.NewConfigFlags(),
	}
}

func (f *ServeFlags) BindFlags(fs *pflag.FlagSet) {
	f.ServerFlags.BindFlags(fs)
	f.DBFlags.BindFlags(fs)
	f.AuthFlags.BindFlags(fs)
	f.CacheFlags.BindFlags(fs)
	f.ConfigFlags.BindFlags(fs)
}

func NewServeCommand() *cobra.Command {
	f := NewServeFlags()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.ConfigFlags.GetConfig()
			if err != nil {
				return err
			}
			resolver, err := f.AuthFlags.GetResolver()
			if err != nil {
				return err
			}

			var store storage.Store
			store, err = f.DBFlags.GetStore()
			if err != nil {
				return errors.WithMessage(err, "couldn't open store")
			}
			defer store.Close()

			cacheClient, err := f.CacheFlags.GetCacheClient()
			if err != nil {
				return errors.WithMessage(err, "couldn't get cache client")
			}
			if valkey, ok := cacheClient.(*cache.Valkey); ok {
				defer valkey.Close()
			}
			store = cached.New(store, cacheClient, cached.DefaultTTL)

			uploadCfg := cfg.Uploads
			if uploadCfg.Dir == "" {
				uploadCfg.Dir = f.ServerFlags.UploadDir
			}
			uploads, err := upload.NewStore(uploadCfg)
			if err != nil {
				return err
			}

			origins := f.ServerFlags.AllowedOrigins
			if len(origins) == 0 {
				origins = cfg.AllowedOrigins
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			hub := ws.NewHub()
			hubDone := make(chan struct{})
			go func() {
				defer close(hubDone)
				hub.Run(ctx)
			}()

			svc := chat.NewService(store, access.NewGuard(store), hub)
			sockets := session.NewManager(hub, svc, resolver, session.Config{
				AllowedOrigins:  origins,
				SendBuffer:      cfg.SendBuffer,
				EventsPerSecond: cfg.RateLimit.EventsPerSecond,
				Burst:           cfg.RateLimit.Burst,
			})

			router := mux.NewRouter()
			conversations.RegisterRoutes(router, &conversations.Handler{
				Chat:            svc,
				Uploads:         uploads,
				DefaultPageSize: cfg.Messages.Default,
				MaxPageSize:     cfg.Messages.Max,
			}, resolver, sockets)

			server := &http.Server{
				Addr:              f.ServerFlags.ListenAddr,
				Handler:           middleware.CORS(origins)(middleware.Logging(router)),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.WithField("addr", server.Addr).Info("chat server listening")
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return errors.WithMessage(err, "server failed")
				}
			case <-ctx.Done():
				log.Info("received shutdown signal")
			}

			// Hijacked sockets are not tracked by Shutdown; stopping the hub
			// closes them.
			stop()
			<-hubDone
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("unclean shutdown")
			}
			log.Info("chat server stopped")
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
