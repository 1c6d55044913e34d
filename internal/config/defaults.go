package config

const (
	defaultConfigPath   = "~/.config/parallelcam/config.toml"
	projectConfigName   = "parallelcam.toml"
	defaultDataDir      = "~/.local/share/parallelcam"
	defaultLogDir       = "~/.local/share/parallelcam/logs"
	defaultLogFormat    = "console"
	defaultLogLevel     = "info"
	defaultServerBind   = "127.0.0.1:8787"
	defaultAuthMode     = AuthNone
	defaultReadTimeout  = 60
	defaultWriteTimeout = 150
	defaultMaxBodyMiB   = 25

	defaultTransport       = TransportGemini
	defaultGeminiBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	defaultMaxAttempts     = 3
	defaultDescribeModel   = "gemini-2.5-flash"
	defaultDescribeFB      = "gemini-2.0-flash"
	defaultAugmentModel    = "gemini-2.5-flash"
	defaultGenerateModel   = "gemini-2.5-flash-image"
	defaultTranscribeModel = "gemini-3-pro-preview"
	defaultTranscribeFB    = "gemini-2.0-flash-exp"
	defaultCallTimeout     = 60
	defaultGenerateTimeout = 120

	defaultHistoryLimit = 50

	defaultMirrorBackend = MirrorSQLite
	defaultMirrorLimit   = 50
	defaultNATSBucket    = "camera_history"

	defaultSessionTTLSeconds = 1800
)

// Supported gateway transports.
const (
	TransportGemini = "gemini"
	TransportRemote = "remote"
)

// Supported authentication modes.
const (
	AuthNone  = "none"
	AuthToken = "token"
	AuthJWT   = "jwt"
)

// Supported mirror backends.
const (
	MirrorSQLite   = "sqlite"
	MirrorPostgres = "postgres"
	MirrorNATS     = "nats"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Server: Server{
			Bind:                defaultServerBind,
			AuthMode:            defaultAuthMode,
			ReadTimeoutSeconds:  defaultReadTimeout,
			WriteTimeoutSeconds: defaultWriteTimeout,
			MaxBodyMiB:          defaultMaxBodyMiB,
		},
		Gateway: Gateway{
			Transport:   defaultTransport,
			BaseURL:     defaultGeminiBaseURL,
			MaxAttempts: defaultMaxAttempts,
			Describe: ModelRoute{
				Model:          defaultDescribeModel,
				Fallback:       defaultDescribeFB,
				TimeoutSeconds: defaultCallTimeout,
			},
			Augment: ModelRoute{
				Model:          defaultAugmentModel,
				TimeoutSeconds: defaultCallTimeout,
			},
			Generate: ModelRoute{
				Model:          defaultGenerateModel,
				TimeoutSeconds: defaultGenerateTimeout,
			},
			Transcribe: ModelRoute{
				Model:          defaultTranscribeModel,
				Fallback:       defaultTranscribeFB,
				TimeoutSeconds: defaultCallTimeout,
			},
		},
		Store: Store{
			HistoryLimit: defaultHistoryLimit,
		},
		Mirror: Mirror{
			Backend:    defaultMirrorBackend,
			Limit:      defaultMirrorLimit,
			NATSBucket: defaultNATSBucket,
		},
		Capture: Capture{
			SessionTTLSeconds: defaultSessionTTLSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
