package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/ollama/seg/logutil"
)

var (
	// Set via INCANTATIONS_DEBUG (or the older INCANTAIONS_DEBUG) in the environment
	Debug bool
	// Set via SD_WEBUI_LOG_LEVEL in the environment
	LogLevel slog.Level
	// Set via SEG_BLUR_THRESHOLD in the environment
	BlurThreshold float64
	// Set via SEG_NUM_PARALLEL in the environment
	NumParallel int
)

// DefaultBlurThreshold is the blur sigma exponent above which the query is
// replaced by its spatial mean.
const DefaultBlurThreshold = 10.5

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"INCANTATIONS_DEBUG": {"INCANTATIONS_DEBUG", Debug, "Show additional debug information (e.g. INCANTATIONS_DEBUG=1, INCANTAIONS_DEBUG is also read)"},
		"SD_WEBUI_LOG_LEVEL": {"SD_WEBUI_LOG_LEVEL", LogLevel, "Log level: TRACE, DEBUG, INFO, WARN or ERROR (default INFO)"},
		"SEG_BLUR_THRESHOLD": {"SEG_BLUR_THRESHOLD", BlurThreshold, "Blur sigma exponent treated as infinite blur (default 10.5)"},
		"SEG_NUM_PARALLEL":   {"SEG_NUM_PARALLEL", NumParallel, "Maximum number of channels blurred in parallel (default GOMAXPROCS)"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func init() {
	LoadConfig()
}

func LoadConfig() {
	Debug = false
	debug := clean("INCANTATIONS_DEBUG")
	if debug == "" {
		debug = clean("INCANTAIONS_DEBUG")
	}
	if debug != "" {
		d, err := strconv.ParseBool(debug)
		if err == nil {
			Debug = d
		} else {
			Debug = true
		}
	}

	LogLevel = slog.LevelInfo
	if level := clean("SD_WEBUI_LOG_LEVEL"); level != "" {
		l, err := logutil.ParseLevel(level)
		if err != nil {
			slog.Error("invalid setting, ignoring", "SD_WEBUI_LOG_LEVEL", level, "error", err)
		} else {
			LogLevel = l
		}
	}
	if Debug && LogLevel > slog.LevelDebug {
		LogLevel = slog.LevelDebug
	}

	BlurThreshold = DefaultBlurThreshold
	if bt := clean("SEG_BLUR_THRESHOLD"); bt != "" {
		f, err := strconv.ParseFloat(bt, 64)
		if err != nil || f < 0 {
			slog.Error("invalid setting, ignoring", "SEG_BLUR_THRESHOLD", bt, "error", err)
		} else {
			BlurThreshold = f
		}
	}

	NumParallel = runtime.GOMAXPROCS(0)
	if onp := clean("SEG_NUM_PARALLEL"); onp != "" {
		val, err := strconv.Atoi(onp)
		if err != nil || val <= 0 {
			slog.Error("invalid setting must be greater than zero", "SEG_NUM_PARALLEL", onp, "error", err)
		} else {
			NumParallel = val
		}
	}
}
