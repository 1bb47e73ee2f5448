package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/alignread/internal/filter"
	"github.com/dgallion1/alignread/internal/output"
	"github.com/dgallion1/alignread/internal/parser"
)

type Config struct {
	Port string `yaml:"port"`

	// Auth
	APIKey string `yaml:"api_key"`

	// Corpus files are resolved below CorpusRoot; job output goes to OutputDir.
	CorpusRoot string `yaml:"corpus_root"`
	OutputDir  string `yaml:"output_dir"`

	// Worker pool
	WorkerCount  int `yaml:"worker_count"`
	MaxQueueSize int `yaml:"max_queue_size"`

	// Job state
	JobTTL time.Duration `yaml:"job_ttl"`

	Extract Extract `yaml:"extract"`
}

// Extract holds the settings of an extraction run. The service takes the same
// fields as JSON in a job request.
type Extract struct {
	Preprocess             string   `yaml:"preprocess" json:"preprocess"`
	Fast                   bool     `yaml:"fast" json:"fast"`
	SrcRange               string   `yaml:"src_range" json:"src_range"`
	TrgRange               string   `yaml:"trg_range" json:"trg_range"`
	Attribute              string   `yaml:"attribute" json:"attribute,omitempty"`
	Threshold              float64  `yaml:"threshold" json:"threshold,omitempty"`
	RejectMissingAttribute bool     `yaml:"reject_missing_attribute" json:"reject_missing_attribute,omitempty"`
	LeaveNonAlignmentsOut  bool     `yaml:"leave_non_alignments_out" json:"leave_non_alignments_out,omitempty"`
	Maximum                int      `yaml:"maximum" json:"maximum,omitempty"`
	WriteMode              string   `yaml:"write_mode" json:"write_mode"`
	SrcLang                string   `yaml:"src_lang" json:"src_lang,omitempty"`
	TrgLang                string   `yaml:"trg_lang" json:"trg_lang,omitempty"`
	PrintAnnotations       bool     `yaml:"print_annotations" json:"print_annotations,omitempty"`
	SourceAnnotations      []string `yaml:"source_annotations" json:"source_annotations,omitempty"`
	TargetAnnotations      []string `yaml:"target_annotations" json:"target_annotations,omitempty"`
	AnnotationDelimiter    string   `yaml:"annotation_delimiter" json:"annotation_delimiter,omitempty"`
}

func Load() Config {
	cfg := Config{
		Port: envOr("ALIGNREAD_PORT", "8090"),

		APIKey: os.Getenv("ALIGNREAD_API_KEY"),

		CorpusRoot: envOr("ALIGNREAD_CORPUS_ROOT", "."),
		OutputDir:  envOr("ALIGNREAD_OUTPUT_DIR", "output"),

		WorkerCount:  envInt("ALIGNREAD_WORKER_COUNT", 2),
		MaxQueueSize: envInt("ALIGNREAD_MAX_QUEUE_SIZE", 100),

		JobTTL: envDuration("ALIGNREAD_JOB_TTL", 1*time.Hour),

		Extract: Extract{
			Preprocess:             envOr("ALIGNREAD_PREPROCESS", "xml"),
			Fast:                   envBool("ALIGNREAD_FAST", false),
			SrcRange:               envOr("ALIGNREAD_SRC_RANGE", "all"),
			TrgRange:               envOr("ALIGNREAD_TRG_RANGE", "all"),
			Attribute:              os.Getenv("ALIGNREAD_ATTRIBUTE"),
			Threshold:              envFloat("ALIGNREAD_THRESHOLD", 0),
			RejectMissingAttribute: envBool("ALIGNREAD_REJECT_MISSING_ATTRIBUTE", false),
			LeaveNonAlignmentsOut:  envBool("ALIGNREAD_LEAVE_NON_ALIGNMENTS_OUT", false),
			Maximum:                envInt("ALIGNREAD_MAXIMUM", 0),
			WriteMode:              envOr("ALIGNREAD_WRITE_MODE", "normal"),
			SrcLang:                os.Getenv("ALIGNREAD_SRC_LANG"),
			TrgLang:                os.Getenv("ALIGNREAD_TRG_LANG"),
			PrintAnnotations:       envBool("ALIGNREAD_PRINT_ANNOTATIONS", false),
			SourceAnnotations:      envList("ALIGNREAD_SOURCE_ANNOTATIONS"),
			TargetAnnotations:      envList("ALIGNREAD_TARGET_ANNOTATIONS"),
			AnnotationDelimiter:    envOr("ALIGNREAD_ANNOTATION_DELIMITER", "|"),
		},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 2
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 100
	}
	if c.JobTTL <= 0 {
		c.JobTTL = 1 * time.Hour
	}
	c.Extract.ApplyDefaults()
}

// ApplyDefaults fills settings left empty, as in a partial job request.
func (e *Extract) ApplyDefaults() {
	if e.Preprocess == "" {
		e.Preprocess = "xml"
	}
	if e.SrcRange == "" {
		e.SrcRange = "all"
	}
	if e.TrgRange == "" {
		e.TrgRange = "all"
	}
	if e.WriteMode == "" {
		e.WriteMode = "normal"
	}
	if e.Maximum < 0 {
		e.Maximum = 0
	}
	if e.AnnotationDelimiter == "" {
		e.AnnotationDelimiter = "|"
	}
}

// Validate checks the extraction defaults.
func (c Config) Validate() error {
	return c.Extract.Validate()
}

// ValidateServer additionally checks what the HTTP service needs.
func (c Config) ValidateServer() error {
	if c.APIKey == "" {
		return fmt.Errorf("ALIGNREAD_API_KEY is required")
	}
	if c.CorpusRoot == "" {
		return fmt.Errorf("ALIGNREAD_CORPUS_ROOT is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("ALIGNREAD_OUTPUT_DIR is required")
	}
	return c.Validate()
}

// Validate rejects settings no run could use.
func (e Extract) Validate() error {
	if _, err := parser.ParseMode(e.Preprocess); err != nil {
		return err
	}
	if _, err := filter.ParseRange(e.SrcRange); err != nil {
		return fmt.Errorf("src_range: %w", err)
	}
	if _, err := filter.ParseRange(e.TrgRange); err != nil {
		return fmt.Errorf("trg_range: %w", err)
	}
	if !output.IsFormat(e.WriteMode) {
		return fmt.Errorf("unknown write mode %q", e.WriteMode)
	}
	if e.RejectMissingAttribute && e.Attribute == "" {
		return fmt.Errorf("reject_missing_attribute needs an attribute")
	}
	if e.WriteMode == "tmx" && (e.SrcLang == "" || e.TrgLang == "") {
		return fmt.Errorf("tmx output needs src_lang and trg_lang")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
