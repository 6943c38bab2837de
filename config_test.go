package xlform

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_Full(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
database: data/xlform.duckdb
log_level: debug
header_scan_rows: 4
recalc_policy: always
lookup_concurrency: 8
history_limit: 20
default_template_name: Appraisal
default_description: Yearly appraisal
rules:
  - field: employeeId
    expr: header == "staff code"
`))
	require.NoError(t, err)

	assert.Equal(t, "data/xlform.duckdb", cfg.Database)
	assert.Equal(t, "debug", cfg.LogLevel)
	require.NotNil(t, cfg.HeaderScanRows)
	assert.Equal(t, 4, *cfg.HeaderScanRows)
	assert.Equal(t, "always", cfg.RecalcPolicy)
	assert.Equal(t, 8, cfg.LookupConcurrency)
	assert.Equal(t, []RuleConfig{{Field: "employeeId", Expr: `header == "staff code"`}}, cfg.Rules)

	opts, err := cfg.Options()
	require.NoError(t, err)
	o := buildOptions(opts)
	assert.Equal(t, 4, o.headerScanRows)
	assert.Equal(t, RecalcAlways, o.recalcPolicy)
	assert.Equal(t, 8, o.lookupConcurrency)
	assert.Equal(t, 20, o.historyLimit)
	assert.Equal(t, "Appraisal", o.defaultTemplateName)
	assert.Equal(t, "Yearly appraisal", o.defaultDescription)

	rs, err := o.ruleSet()
	require.NoError(t, err)
	assert.True(t, rs.Matches("Staff Code", FieldEmployeeID))
	assert.True(t, rs.Matches("Email", FieldEmail))
}

func TestParseConfig_Empty(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Empty(t, opts)

	o := buildOptions(opts)
	assert.Equal(t, 10, o.headerScanRows)
	assert.Equal(t, RecalcBackfill, o.recalcPolicy)
}

func TestParseConfig_HeaderScanRowsZero(t *testing.T) {
	cfg, err := ParseConfig([]byte("header_scan_rows: 0\n"))
	require.NoError(t, err)
	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, 0, buildOptions(opts).headerScanRows)
}

func TestParseConfig_UnknownKey(t *testing.T) {
	_, err := ParseConfig([]byte("databse: x\n"))
	assert.Error(t, err)
}

func TestConfigOptions_Invalid(t *testing.T) {
	_, err := (&Config{RecalcPolicy: "sometimes"}).Options()
	assert.Error(t, err)

	_, err = (&Config{Rules: []RuleConfig{{Field: "salary", Expr: "true"}}}).Options()
	assert.ErrorContains(t, err, "rules[0]")

	_, err = (&Config{Rules: []RuleConfig{{Field: "name", Expr: "header +"}}}).Options()
	assert.Error(t, err)
}

func TestConfigOptions_PasswordSetsCodec(t *testing.T) {
	opts, err := (&Config{Password: "secret"}).Options()
	require.NoError(t, err)
	codec, ok := buildOptions(opts).codec.(*ExcelizeCodec)
	require.True(t, ok)
	assert.Equal(t, "secret", codec.password)
	assert.True(t, codec.calcOnDecode)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xlform.yaml")
	require.NoError(t, os.WriteFile(path, []byte("history_limit: 5\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.HistoryLimit)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLogLevel("loud")
	assert.Error(t, err)
}
