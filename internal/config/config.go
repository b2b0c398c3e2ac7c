// Package config loads chronos run configuration from CUE.
//
// A configuration file is unified with the embedded #Config schema, which
// supplies defaults and constraints, then decoded into Config. The workload
// block is additionally checked with workload.Validate so that references
// between tasks are caught before anything is scheduled.
package config

import (
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/chronos/internal/workload"
)

//go:embed schema.cue
var schemaSource string

// Error codes (E300-E399)
const (
	ErrCodeNotFound        = "E301" // config path does not exist
	ErrCodeLoadFailed      = "E302" // CUE files could not be loaded
	ErrCodeBuildFailed     = "E303" // CUE value could not be built
	ErrCodeSchema          = "E304" // value does not satisfy #Config
	ErrCodeDecode          = "E305" // value could not be decoded
	ErrCodeInvalidWorkload = "E306" // workload.Validate reported problems
)

// Error is a configuration error with the CUE position when one is known.
type Error struct {
	Code    string
	Message string
	Pos     token.Pos

	// Issues holds every workload problem for ErrCodeInvalidWorkload.
	Issues []workload.ValidationError
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Config is the decoded run configuration.
type Config struct {
	Scheduler SchedulerConfig   `json:"scheduler"`
	Log       LogConfig         `json:"log"`
	Journal   JournalConfig     `json:"journal"`
	Host      HostConfig        `json:"host"`
	Workload  workload.Workload `json:"workload"`
}

// SchedulerConfig configures the scheduler.
type SchedulerConfig struct {
	Frequency float64 `json:"frequency"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// JournalConfig configures the run journal. An empty path disables it.
type JournalConfig struct {
	Path string `json:"path"`
}

// HostConfig configures the simulated host render loop.
type HostConfig struct {
	FrameRate float64 `json:"frame_rate"`
}

// Default returns the configuration produced by an empty file.
func Default() *Config {
	cfg, err := Parse([]byte(""), "default.cue")
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	return cfg
}

// Load reads the configuration at path. A directory is loaded as a CUE
// package instance; anything else is compiled as a single file.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("config not found: %s", path)}
	}
	if info.IsDir() {
		return loadDir(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}
	}
	return Parse(data, path)
}

// Parse compiles data as CUE source named filename and decodes it.
func Parse(data []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, cueError(ErrCodeBuildFailed, err)
	}
	return decode(ctx, v)
}

func loadDir(dir string) (*Config, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &Error{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &Error{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	ctx := cuecontext.New()
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, cueError(ErrCodeBuildFailed, err)
	}
	return decode(ctx, v)
}

// decode unifies v with #Config, requires a concrete result and decodes it.
func decode(ctx *cue.Context, v cue.Value) (*Config, error) {
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue")).
		LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return nil, cueError(ErrCodeBuildFailed, err)
	}

	merged := schema.Unify(v)
	if err := merged.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(ErrCodeSchema, err)
	}

	var cfg Config
	if err := merged.Decode(&cfg); err != nil {
		return nil, cueError(ErrCodeDecode, err)
	}

	if issues := workload.Validate(cfg.Workload); len(issues) > 0 {
		msgs := make([]string, len(issues))
		for i, is := range issues {
			msgs[i] = fmt.Sprintf("[%s] workload.%s: %s", is.Code, is.Field, is.Message)
		}
		return nil, &Error{
			Code:    ErrCodeInvalidWorkload,
			Message: strings.Join(msgs, "; "),
			Issues:  issues,
		}
	}
	return &cfg, nil
}

// cueError keeps the first CUE error and its position.
func cueError(code string, err error) *Error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Code: code, Message: err.Error()}
	}
	first := errs[0]
	out := &Error{Code: code, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		out.Pos = positions[0]
	}
	return out
}

// SlogLevel maps Level to a slog level. Unknown levels mean info.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w. verbose forces debug level.
func (c LogConfig) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := c.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if c.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}
