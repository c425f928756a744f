package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/zerfoo/ztar/pkg/dtype"
)

var (
	// Set via ZTAR_DEBUG in the environment
	Debug bool
	// Set via ZTAR_SIZE_LIMIT in the environment
	SizeLimit int
	// Set via ZTAR_ALLOCATION in the environment ("shared" or "per-tensor")
	Allocation string
	// Set via ZTAR_RELATIVE_ERROR in the environment
	RelativeError float64
	// Set via HF_API_KEY in the environment
	HFAPIKey string
	// Set via HUGGINGFACE_API_URL in the environment
	HuggingFaceAPI string
	// Set via HUGGINGFACE_CDN_URL in the environment
	HuggingFaceCDN string
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"ZTAR_DEBUG":          {"ZTAR_DEBUG", Debug, "Show additional debug information (e.g. ZTAR_DEBUG=1)"},
		"ZTAR_SIZE_LIMIT":     {"ZTAR_SIZE_LIMIT", SizeLimit, "Minimum tensor byte length that is moved out of the model (default 16384)"},
		"ZTAR_ALLOCATION":     {"ZTAR_ALLOCATION", Allocation, "Blob placement: shared or per-tensor (default shared)"},
		"ZTAR_RELATIVE_ERROR": {"ZTAR_RELATIVE_ERROR", RelativeError, "Relative error tolerance recorded with every blob (default 0)"},
		"HF_API_KEY":          {"HF_API_KEY", "", "Hugging Face token used by the download command"},
		"HUGGINGFACE_API_URL": {"HUGGINGFACE_API_URL", HuggingFaceAPI, "Hugging Face model API base URL"},
		"HUGGINGFACE_CDN_URL": {"HUGGINGFACE_CDN_URL", HuggingFaceCDN, "Hugging Face file download base URL"},
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
	SizeLimit = dtype.DefaultSizeLimit
	Allocation = "shared"
	RelativeError = 0
	HuggingFaceAPI = "https://huggingface.co/api/models/"
	HuggingFaceCDN = "https://huggingface.co/"

	if debug := clean("ZTAR_DEBUG"); debug != "" {
		d, err := strconv.ParseBool(debug)
		if err == nil {
			Debug = d
		} else {
			Debug = true
		}
	}

	if limit := clean("ZTAR_SIZE_LIMIT"); limit != "" {
		val, err := strconv.Atoi(limit)
		if err != nil || val < 0 {
			slog.Error("invalid setting, ignoring", "ZTAR_SIZE_LIMIT", limit, "error", err)
		} else {
			SizeLimit = val
		}
	}

	if alloc := clean("ZTAR_ALLOCATION"); alloc != "" {
		Allocation = alloc
	}

	if relErr := clean("ZTAR_RELATIVE_ERROR"); relErr != "" {
		val, err := strconv.ParseFloat(relErr, 64)
		if err != nil || val < 0 {
			slog.Error("invalid setting, ignoring", "ZTAR_RELATIVE_ERROR", relErr, "error", err)
		} else {
			RelativeError = val
		}
	}

	HFAPIKey = clean("HF_API_KEY")

	if apiURL := clean("HUGGINGFACE_API_URL"); apiURL != "" {
		HuggingFaceAPI = apiURL
	}
	if cdnURL := clean("HUGGINGFACE_CDN_URL"); cdnURL != "" {
		HuggingFaceCDN = cdnURL
	}
}
