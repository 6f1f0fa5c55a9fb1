package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"vochat/internal/apiclient"
	"vochat/internal/audio"
	"vochat/internal/config"
	"vochat/internal/domain"
	"vochat/internal/events"
	"vochat/internal/hotkey"
	"vochat/internal/httpapi"
	"vochat/internal/insert"
	"vochat/internal/llm"
	"vochat/internal/normalize"
	"vochat/internal/notify"
	"vochat/internal/observability/logging"
	"vochat/internal/observability/metrics"
	"vochat/internal/ports"
	"vochat/internal/providers/deepgram"
	"vochat/internal/quota"
	"vochat/internal/refine"
	"vochat/internal/store"
	"vochat/internal/usecase"
)

// Backend names reported to the UI.
const (
	BackendServer = "server"
	BackendLocal  = "local"
)

// Desktop is the assembled dictation client.
type Desktop struct {
	Controller *usecase.RecordingController
	Hotkey     *hotkey.Listener
	Config     config.Desktop
	Backend    string

	// Paster is nil when paste simulation is disabled.
	Paster *insert.KeyboardPaster
}

// BuildDesktop wires the desktop runtime. clipboard may be nil, in which case
// the system clipboard utilities are used.
func BuildDesktop(eventSink ports.EventSink, clipboard insert.Clipboard) (Desktop, error) {
	cfg, err := config.LoadDesktop()
	if err != nil {
		return Desktop{}, err
	}
	logger := logging.Init(cfg.Log)

	userRules, err := normalize.LoadUserRules(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return Desktop{}, err
	}

	listener, err := hotkey.NewListener(cfg.Hotkey.Combo, logging.WithComponent("hotkey"))
	if err != nil {
		return Desktop{}, err
	}

	var (
		tokens  ports.TokenSource
		refiner ports.Refiner
		auth    ports.Authenticator
		backend = BackendServer
		mode    = cfg.Session.Mode
	)
	switch {
	case cfg.API.Configured():
		client := apiclient.New(apiclient.Config{
			BaseURL:  cfg.API.BaseURL,
			APIToken: cfg.API.Token,
			Timeout:  cfg.API.Timeout,
		}, nil)
		tokens, refiner, auth = client, client, client
	case cfg.Deepgram.APIKey != "":
		backend = BackendLocal
		auth = localKey{}
		if mode == domain.DeliveryRefineThenInsert {
			logger.Warn().Msg("refinement needs a vochat server; inserting normalized transcripts")
			mode = domain.DeliveryNormalizeThenInsert
		}
	default:
		// Without credentials every hold reports that sign-in is required.
		client := apiclient.New(apiclient.Config{BaseURL: cfg.API.BaseURL, Timeout: cfg.API.Timeout}, nil)
		tokens, refiner, auth = client, client, client
	}

	if eventSink != nil && cfg.Insert.Notifications {
		eventSink = notify.Wrap(eventSink, logging.WithComponent("notify"))
	}

	var (
		paster   insert.Paster
		keyboard *insert.KeyboardPaster
	)
	if cfg.Insert.SimulatePaste {
		keyboard = insert.NewKeyboardPaster()
		paster = keyboard
	}

	controller := usecase.NewRecordingController(
		usecase.Dependencies{
			Audio:      audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand, logging.WithComponent("audio")),
			Provider:   deepgram.NewProvider(deepgramConfig(cfg.Deepgram), tokens),
			Refiner:    refiner,
			Normalizer: normalize.New(userRules),
			Inserter:   insert.New(clipboard, paster, cfg.Insert.Settle, logging.WithComponent("insert")),
			Auth:       auth,
			Events:     eventSink,
		},
		usecase.Config{
			HoldThreshold: cfg.Session.HoldThreshold,
			DisplayHold:   cfg.Session.DisplayHold,
			ErrorHold:     cfg.Session.ErrorHold,
			CloseTimeout:  cfg.Session.CloseTimeout,
			Style: domain.StyleHint{
				ProfileID: cfg.API.ProfileID,
				Language:  cfg.Deepgram.Language,
			},
			Transcription: usecase.TranscriptionConfig{
				Audio: ports.AudioConfig{
					SampleRate:  cfg.Audio.SampleRate,
					Channels:    cfg.Audio.Channels,
					InputFormat: cfg.Audio.InputFormat,
					InputDevice: cfg.Audio.InputDevice,
				},
				Streaming: ports.StreamingConfig{
					SampleRate:     cfg.Audio.SampleRate,
					Channels:       cfg.Audio.Channels,
					Encoding:       "linear16",
					InterimResults: true,
				},
			},
			Delivery: usecase.DeliveryConfig{
				Mode:           mode,
				ProfileID:      cfg.API.ProfileID,
				RefineAttempts: cfg.Session.RefineAttempts,
				RefineBackoff:  cfg.Session.RefineBackoff,
			},
		},
	)

	logger.Info().
		Str("backend", backend).
		Str("mode", string(mode)).
		Str("hotkey", listener.Combo().String()).
		Int("userRules", userRules.Len()).
		Msg("desktop services ready")

	return Desktop{
		Controller: controller,
		Hotkey:     listener,
		Paster:     keyboard,
		Config:     cfg,
		Backend:    backend,
	}, nil
}

func deepgramConfig(cfg config.DeepgramConfig) deepgram.Config {
	return deepgram.Config{
		APIKey:      cfg.APIKey,
		APIBaseURL:  cfg.APIBaseURL,
		Model:       cfg.Model,
		Language:    cfg.Language,
		SmartFormat: cfg.SmartFormat,
		Punctuate:   cfg.Punctuate,
	}
}

// localKey authenticates with a Deepgram key from the local configuration.
type localKey struct{}

func (localKey) Authenticated() bool { return true }

// Server is the assembled refinement server.
type Server struct {
	Handler   http.Handler
	Registry  *prometheus.Registry
	Store     *store.Store
	Refiner   *refine.Service
	Publisher *events.Publisher
	Config    config.Server
}

// BuildServer wires the HTTP service over an opened store.
func BuildServer(ctx context.Context, cfg config.Server, logger zerolog.Logger) (*Server, error) {
	st, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry)

	gate := quota.NewGate(st, cfg.Quota.FreeWeeklyWords, cfg.Quota.ProAccounts)

	var model refine.Model
	client, err := llm.NewClient(cfg.LLM, nil, logger.With().Str("component", "llm").Logger())
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		logger.Warn().Msg("OPENAI_API_KEY not set; refinement requests will fail with 502")
		model = llm.Disabled{}
	case err != nil:
		_ = st.Close()
		return nil, fmt.Errorf("refinement model: %w", err)
	default:
		model = client
	}

	kafkaCfg := cfg.Kafka
	publisher := events.New(&kafkaCfg, m, logger.With().Str("component", "events").Logger())
	service := refine.NewService(st, gate, model, publisher, m, logger.With().Str("component", "refine").Logger())

	tokens := httpapi.NewTokenIssuer(gate, st, map[string]string{
		deepgram.ProviderName: cfg.STT.DeepgramKey,
	}, cfg.STT.TokenTTL)

	handler := httpapi.NewRouter(httpapi.Deps{
		Refiner:  service,
		Tokens:   tokens,
		Accounts: httpapi.StaticTokens(cfg.Auth.Tokens),
		Store:    st,
		Metrics:  m,
		Gatherer: registry,
		Logger:   logger,
	})

	return &Server{
		Handler:   handler,
		Registry:  registry,
		Store:     st,
		Refiner:   service,
		Publisher: publisher,
		Config:    cfg,
	}, nil
}

// Close drains usage publishing and releases the store.
func (s *Server) Close() error {
	s.Refiner.Close()
	return errors.Join(s.Publisher.Close(), s.Store.Close())
}
