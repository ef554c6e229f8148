// sfu-probe joins a room with a synthetic media engine and reports the
// session lifecycle, peers and consumers it observes. It exercises the whole
// signaling sequence against a real server without any native RTC stack.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/workmesh/sfuclient"
	"github.com/workmesh/sfuclient/synthetic"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	session, err := sfuclient.NewSession(sfuclient.SessionOptions{
		ServerURL:         cfg.ServerURL,
		RoomId:            cfg.RoomId,
		DisplayName:       cfg.DisplayName,
		Engine:            synthetic.NewEngine(),
		Capture:           synthetic.NewCapture(),
		EnableAudio:       &cfg.EnableAudio,
		EnableVideo:       &cfg.EnableVideo,
		RequestTimeout:    cfg.RequestTimeout,
		ReconnectAttempts: cfg.ReconnectAttempts,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create session")
	}

	session.OnStateChange(func(state sfuclient.SessionState) {
		log.Info().Str("state", string(state)).Msg("session state")
	})
	session.OnDegraded(func(reason string) {
		log.Warn().Str("reason", reason).Msg("session degraded")
	})
	session.Registry().OnPeerJoined(func(peer *sfuclient.Peer) {
		log.Info().Str("peerId", peer.Id()).Str("displayName", peer.DisplayName()).Msg("peer joined")
	})
	session.Registry().OnPeerLeft(func(peer *sfuclient.Peer) {
		log.Info().Str("peerId", peer.Id()).Msg("peer left")
	})

	if err := session.Join(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to join room")
	}
	log.Info().
		Str("sessionId", session.Id()).
		Str("room", cfg.RoomId).
		Str("degraded", session.DegradedReason()).
		Msg("joined")

	<-ctx.Done()
	log.Info().Msg("leaving")
	if err := session.Leave(); err != nil {
		log.Error().Err(err).Msg("leave failed")
	}
	log.Info().Msg("probe exited")
}
