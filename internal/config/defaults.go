package config

const (
	defaultWorkDir   = "/tmp/animation_processing"
	defaultStateDir  = "~/.local/share/anipipe/state"
	defaultLogDir    = "~/.local/share/anipipe/logs"
	defaultOutputDir = "~/.local/share/anipipe/output"

	defaultInputRepo       = "ageless/3k-animation-mkv-av1"
	defaultOutputRepo      = "ageless/3k-animation-mkv-av1"
	defaultListTimeout     = 120
	defaultDownloadTimeout = 1800
	defaultUploadTimeout   = 1800

	defaultGranularity     = "item"
	defaultPollInterval    = 300
	defaultStabilityWindow = 600
	defaultSmallFileCount  = 10
	defaultSmallSizeGiB    = 5
	defaultMediumFileCount = 50
	defaultMediumSizeGiB   = 20

	defaultIdleSleep           = 30
	defaultStatusInterval      = 60
	defaultMinFreeSpaceGiB     = 5
	defaultMaxEpisodesPerBatch = 30
	defaultStopTimeout         = 30

	defaultEncoderBinary  = "ffmpeg"
	defaultEncoderTimeout = 7200
	defaultSceneThreshold = 30.0

	defaultCwebpBinary  = "cwebp"
	defaultWebPQuality  = 90
	defaultMaxImageEdge = 2048
	defaultFrameTimeout = 120

	defaultTransportTimeout = 300
	defaultTransportRetries = 3

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// defaultEncoderArgs mirrors the software AV1 parameter set used for batch
// conversion. Audio and subtitle streams are copied untouched.
func defaultEncoderArgs() []string {
	return []string{
		"-c:v", "libsvtav1",
		"-preset", "6",
		"-crf", "30",
		"-c:a", "copy",
		"-c:s", "copy",
		"-f", "matroska",
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
			OutputDir: defaultOutputDir,
		},
		Repository: Repository{
			InputRepo:       defaultInputRepo,
			OutputRepo:      defaultOutputRepo,
			ListTimeout:     defaultListTimeout,
			DownloadTimeout: defaultDownloadTimeout,
			UploadTimeout:   defaultUploadTimeout,
		},
		Discovery: Discovery{
			Granularity:     defaultGranularity,
			PollInterval:    defaultPollInterval,
			StabilityWindow: defaultStabilityWindow,
			SmallFileCount:  defaultSmallFileCount,
			SmallSizeGiB:    defaultSmallSizeGiB,
			MediumFileCount: defaultMediumFileCount,
			MediumSizeGiB:   defaultMediumSizeGiB,
		},
		Worker: Worker{
			IdleSleep:           defaultIdleSleep,
			StatusInterval:      defaultStatusInterval,
			MinFreeSpaceGiB:     defaultMinFreeSpaceGiB,
			MaxEpisodesPerBatch: defaultMaxEpisodesPerBatch,
			StopTimeout:         defaultStopTimeout,
		},
		Encoder: Encoder{
			Binary:         defaultEncoderBinary,
			Args:           defaultEncoderArgs(),
			Timeout:        defaultEncoderTimeout,
			SceneThreshold: defaultSceneThreshold,
		},
		Frames: Frames{
			CwebpBinary: defaultCwebpBinary,
			Quality:     defaultWebPQuality,
			MaxEdge:     defaultMaxImageEdge,
			Timeout:     defaultFrameTimeout,
		},
		Transport: Transport{
			Timeout: defaultTransportTimeout,
			Retries: defaultTransportRetries,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
