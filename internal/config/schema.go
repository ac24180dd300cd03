package config

import "time"

// Config holds the full run configuration.
// Stored at: config.yaml (working directory or ~/.folio)
type Config struct {
	// BaseDir is the folder scanned for PDF documents.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`

	Provider  ProviderCfg  `mapstructure:"provider" yaml:"provider"`
	OCR       OCRCfg       `mapstructure:"ocr" yaml:"ocr"`
	Models    ModelsCfg    `mapstructure:"models" yaml:"models"`
	Analysis  AnalysisCfg  `mapstructure:"analysis" yaml:"analysis"`
	Selector  SelectorCfg  `mapstructure:"selector" yaml:"selector"`
	Scheduler SchedulerCfg `mapstructure:"scheduler" yaml:"scheduler"`
	Cache     CacheCfg     `mapstructure:"cache" yaml:"cache"`
}

// ProviderCfg configures the LLM provider.
type ProviderCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"`             // "openai"
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"`       // supports ${ENV_VAR} syntax
	BaseURL   string  `mapstructure:"base_url" yaml:"base_url"`     // override for compatible endpoints
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second
}

// OCRCfg configures the OCR provider.
type OCRCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"`             // "tesseract"
	Binary    string  `mapstructure:"binary" yaml:"binary"`         // tesseract binary path
	Languages string  `mapstructure:"languages" yaml:"languages"`   // e.g. "eng+deu"
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
}

// ModelsCfg selects the model per pass.
type ModelsCfg struct {
	Text     string `mapstructure:"text" yaml:"text"`
	LongText string `mapstructure:"long_text" yaml:"long_text"`
	Vision   string `mapstructure:"vision" yaml:"vision"`
	Tags     string `mapstructure:"tags" yaml:"tags"`
}

// AnalysisCfg tunes pass behavior.
type AnalysisCfg struct {
	// LongDocWords is the word count at which text analysis switches to
	// the long-context model.
	LongDocWords int `mapstructure:"long_doc_words" yaml:"long_doc_words"`

	// OCRWordThreshold is the per-page word count below which a page is
	// considered sparse and handed to OCR.
	OCRWordThreshold int `mapstructure:"ocr_word_threshold" yaml:"ocr_word_threshold"`

	// ConfidenceThreshold is the title/date confidence below which a
	// document counts as incomplete.
	ConfidenceThreshold int `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`

	// ImageSubsumesText marks text analysis redundant once image analysis
	// succeeded for the document.
	ImageSubsumesText bool `mapstructure:"image_subsumes_text" yaml:"image_subsumes_text"`
}

// SelectorCfg tunes the content selector.
type SelectorCfg struct {
	Budget          int     `mapstructure:"budget" yaml:"budget"`                     // token budget per request
	PriorityPages   int     `mapstructure:"priority_pages" yaml:"priority_pages"`
	MinEdgePx       int     `mapstructure:"min_edge_px" yaml:"min_edge_px"`
	ClutterLimit    int     `mapstructure:"clutter_limit" yaml:"clutter_limit"`
	RenderDPI       int     `mapstructure:"render_dpi" yaml:"render_dpi"`
	ScannedCoverage float64 `mapstructure:"scanned_coverage" yaml:"scanned_coverage"` // percent
}

// SchedulerCfg tunes the worker pool and retry policy.
type SchedulerCfg struct {
	Workers       int           `mapstructure:"workers" yaml:"workers"`
	RetryAttempts int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

// CacheCfg configures the result cache.
type CacheCfg struct {
	Path string        `mapstructure:"path" yaml:"path"` // SQLite file, default under ~/.folio
	TTL  time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseDir: ".",
		Provider: ProviderCfg{
			Type:      "openai",
			APIKey:    "${OPENAI_API_KEY}",
			RateLimit: 2.0,
		},
		OCR: OCRCfg{
			Type:      "tesseract",
			Binary:    "tesseract",
			Languages: "eng+deu",
			RateLimit: 4.0,
			Enabled:   true,
		},
		Models: ModelsCfg{
			Text:     "gpt-4o-mini",
			LongText: "gpt-4o",
			Vision:   "gpt-4o",
			Tags:     "gpt-4o-mini",
		},
		Analysis: AnalysisCfg{
			LongDocWords:        2000,
			OCRWordThreshold:    10,
			ConfidenceThreshold: 7,
			ImageSubsumesText:   true,
		},
		Selector: SelectorCfg{
			Budget:          16000,
			PriorityPages:   2,
			MinEdgePx:       300,
			ClutterLimit:    4,
			RenderDPI:       150,
			ScannedCoverage: 95,
		},
		Scheduler: SchedulerCfg{
			Workers:       4,
			RetryAttempts: 3,
			RetryDelay:    2 * time.Second,
		},
		Cache: CacheCfg{
			TTL: 24 * time.Hour,
		},
	}
}
