package xlform

import (
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Options holds configuration shared by the Extractor, RowProcessor and
// Service.
type Options struct {
	codec               Codec
	logger              *slog.Logger
	clock               func() time.Time
	newID               func() string
	rules               []HeaderRule
	headerScanRows      int
	recalcPolicy        RecalcPolicy
	lookupConcurrency   int
	defaultTemplateName string
	defaultDescription  string
	version             string
	historyLimit        int
	retainOriginal      bool
}

func defaultOptions() *Options {
	return &Options{
		codec:               NewExcelizeCodec(),
		logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:               time.Now,
		newID:               func() string { return uuid.New().String() },
		headerScanRows:      10,
		recalcPolicy:        RecalcBackfill,
		lookupConcurrency:   1,
		defaultTemplateName: "PMS-Header",
		defaultDescription:  "Performance Management System Header Template",
		version:             "1.0.0",
		historyLimit:        50,
		retainOriginal:      true,
	}
}

func buildOptions(opts []Option) *Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ruleSet compiles the configured custom rules ahead of the defaults.
func (o *Options) ruleSet() (*RuleSet, error) {
	if len(o.rules) == 0 {
		return defaultRuleSet, nil
	}
	rules := append(append([]HeaderRule(nil), o.rules...), DefaultRules()...)
	return NewRuleSet(rules)
}

// Option configures the library.
type Option func(*Options)

// WithCodec sets the spreadsheet codec (default: ExcelizeCodec).
func WithCodec(c Codec) Option {
	return func(o *Options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithLogger sets the logger for diagnostics. By default nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock sets the time source used for template names and timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithIDGenerator sets the source of batch ids, record ids and template
// name tokens (default: random UUIDs).
func WithIDGenerator(gen func() string) Option {
	return func(o *Options) {
		if gen != nil {
			o.newID = gen
		}
	}
}

// WithRules adds custom header rules. They are checked before the default
// rules.
func WithRules(rules ...HeaderRule) Option {
	return func(o *Options) { o.rules = append(o.rules, rules...) }
}

// WithHeaderScanRows sets the last row index (0-based) considered during
// header detection (default: 10).
func WithHeaderScanRows(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.headerScanRows = n
		}
	}
}

// WithRecalcPolicy sets when formula columns are recomputed for uploaded
// rows (default: RecalcBackfill).
func WithRecalcPolicy(p RecalcPolicy) Option {
	return func(o *Options) { o.recalcPolicy = p }
}

// WithLookupConcurrency sets how many employee lookups run at once while
// processing an upload (default: 1).
func WithLookupConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.lookupConcurrency = n
		}
	}
}

// WithDefaultTemplateName sets the base name used when a template upload
// does not name itself (default: "PMS-Header").
func WithDefaultTemplateName(name string) Option {
	return func(o *Options) {
		if name != "" {
			o.defaultTemplateName = name
		}
	}
}

// WithDefaultDescription sets the description used when a template upload
// has none.
func WithDefaultDescription(desc string) Option {
	return func(o *Options) { o.defaultDescription = desc }
}

// WithHistoryLimit sets the number of batches returned by UploadHistory
// (default: 50).
func WithHistoryLimit(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.historyLimit = n
		}
	}
}

// WithRetainOriginal controls whether template uploads keep their original
// bytes for download (default: true).
func WithRetainOriginal(keep bool) Option {
	return func(o *Options) { o.retainOriginal = keep }
}
