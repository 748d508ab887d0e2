package config

const (
	defaultWorkDir    = "~/.local/share/gridflow/work"
	defaultLogDir     = "~/.local/share/gridflow/logs"
	defaultGalleryDir = "~/.local/share/gridflow/gallery"

	defaultUpscaleProvider    = "gemini"
	defaultTransitionProvider = "gemini"
	defaultImageVideoProvider = "comfy"

	defaultGeminiBaseURL      = "https://generativelanguage.googleapis.com"
	defaultGeminiImageModel   = "gemini-3-pro-image-preview"
	defaultGeminiVideoModel   = "veo-3.1-fast-generate-preview"
	defaultGeminiPollInterval = 10

	defaultKlingBaseURL      = "https://api.klingai.com/v1"
	defaultKlingModel        = "kling-v1"
	defaultKlingMode         = "std"
	defaultKlingDuration     = "5"
	defaultKlingPollInterval = 5
	defaultKlingPollTimeout  = 300

	defaultSDWebUIBaseURL  = "http://127.0.0.1:7860"
	defaultSDWebUIUpscaler = "R-ESRGAN 4x+"
	defaultSDWebUIMethod   = "extras"
	defaultSDWebUITimeout  = 120

	defaultComfyBaseURL     = "http://127.0.0.1:8188"
	defaultComfyWaitTimeout = 300

	defaultStitchBaseURL = "http://127.0.0.1:3100"
	defaultStitchTimeout = 120

	defaultBatchYieldMillis   = 100
	defaultChainMaxIterations = 10
	defaultUpscaleFactor      = 2
	defaultTransitionAspect   = "1:1"
	defaultChainAspect        = "16:9"

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:    defaultWorkDir,
			LogDir:     defaultLogDir,
			GalleryDir: defaultGalleryDir,
		},
		Providers: Providers{
			Upscale:    defaultUpscaleProvider,
			Transition: defaultTransitionProvider,
			ImageVideo: defaultImageVideoProvider,
		},
		Gemini: Gemini{
			BaseURL:      defaultGeminiBaseURL,
			ImageModel:   defaultGeminiImageModel,
			VideoModel:   defaultGeminiVideoModel,
			PollInterval: defaultGeminiPollInterval,
		},
		Kling: Kling{
			BaseURL:      defaultKlingBaseURL,
			Model:        defaultKlingModel,
			Mode:         defaultKlingMode,
			Duration:     defaultKlingDuration,
			PollInterval: defaultKlingPollInterval,
			PollTimeout:  defaultKlingPollTimeout,
		},
		SDWebUI: SDWebUI{
			BaseURL:       defaultSDWebUIBaseURL,
			Upscaler:      defaultSDWebUIUpscaler,
			UpscaleMethod: defaultSDWebUIMethod,
			Timeout:       defaultSDWebUITimeout,
		},
		Comfy: Comfy{
			BaseURL:     defaultComfyBaseURL,
			WaitTimeout: defaultComfyWaitTimeout,
		},
		Stitch: Stitch{
			BaseURL: defaultStitchBaseURL,
			Timeout: defaultStitchTimeout,
		},
		Workflow: Workflow{
			BatchYieldMillis:   defaultBatchYieldMillis,
			ChainMaxIterations: defaultChainMaxIterations,
			UpscaleFactor:      defaultUpscaleFactor,
			TransitionAspect:   defaultTransitionAspect,
			ChainAspect:        defaultChainAspect,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
