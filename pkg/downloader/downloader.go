// Package downloader fetches ONNX models and their external data files from
// the Hugging Face Hub so they can be packed.
package downloader

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/zerfoo/ztar/internal/envconfig"
)

// externalDataSuffixes are the file name endings used for tensor data stored
// next to an ONNX model.
var externalDataSuffixes = []string{".data", ".onnx_data", ".onnx.data"}

// ModelSource defines the interface for a model source, such as HuggingFace.
type ModelSource interface {
	// DownloadModel downloads the specified model and its associated files
	// to the given destination.
	DownloadModel(modelID string, destination string) (*DownloadResult, error)
}

// DownloadResult contains the paths to the downloaded files.
type DownloadResult struct {
	ModelPaths        []string
	ExternalDataPaths []string
	TokenizerPaths    []string
}

// Downloader handles the overall download process using a ModelSource.
type Downloader struct {
	source ModelSource
}

// NewDownloader creates a new Downloader with the given ModelSource.
func NewDownloader(source ModelSource) *Downloader {
	return &Downloader{source: source}
}

// Download downloads a model and its associated files using the configured
// ModelSource.
func (d *Downloader) Download(modelID string, destination string) (*DownloadResult, error) {
	return d.source.DownloadModel(modelID, destination)
}

func newRequest(url, apiKey string) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	return req, nil
}

// downloadFile downloads a single file from a URL to a local path. Nothing is
// created on disk unless the server answers 200 OK.
func downloadFile(client *http.Client, apiKey, url, filePath string) error {
	req, err := newRequest(url, apiKey)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download file from %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download file from %s: status code %s", url, resp.Status)
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	out, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", filePath, err)
	}
	if _, err := copyFile(resp.Body, out); err != nil {
		_ = out.Close()
		_ = os.Remove(filePath)
		return fmt.Errorf("failed to write file %s: %w", filePath, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close file %s: %w", filePath, err)
	}
	return nil
}

// copyFile copies content from a source reader to a destination writer.
func copyFile(src io.Reader, dst io.Writer) (int64, error) {
	return io.Copy(dst, src)
}

// HuggingFaceSource implements the ModelSource interface for HuggingFace Hub.
type HuggingFaceSource struct {
	client *http.Client
	apiKey string
	apiURL string
	cdnURL string
	logger *slog.Logger
}

// NewHuggingFaceSource creates a new HuggingFaceSource. A non-empty apiKey is
// sent as a bearer token with every request. Endpoints come from envconfig.
func NewHuggingFaceSource(apiKey string) *HuggingFaceSource {
	return &HuggingFaceSource{
		client: &http.Client{},
		apiKey: apiKey,
		apiURL: envconfig.HuggingFaceAPI,
		cdnURL: envconfig.HuggingFaceCDN,
		logger: slog.Default(),
	}
}

// HuggingFaceModelInfo represents the structure of the JSON response from HuggingFace API.
type HuggingFaceModelInfo struct {
	ModelID  string `json:"modelId"`
	Siblings []struct {
		RPath string `json:"rfilename"`
	} `json:"siblings"`
}

func (h *HuggingFaceSource) fileURL(modelID, rPath string) string {
	return strings.TrimSuffix(h.cdnURL, "/") + "/" + modelID + "/resolve/main/" + rPath
}

func isExternalData(rPath string) bool {
	for _, suffix := range externalDataSuffixes {
		if strings.HasSuffix(rPath, suffix) {
			return true
		}
	}
	return false
}

// DownloadModel downloads every ONNX model of modelID together with its
// external data files and tokenizer files.
func (h *HuggingFaceSource) DownloadModel(modelID string, destination string) (*DownloadResult, error) {
	apiURL := h.apiURL + modelID
	req, err := newRequest(apiURL, h.apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", apiURL, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch model info from HuggingFace API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HuggingFace API returned non-OK status: %s", resp.Status)
	}

	var modelInfo HuggingFaceModelInfo
	if err := json.NewDecoder(resp.Body).Decode(&modelInfo); err != nil {
		return nil, fmt.Errorf("failed to decode HuggingFace API response: %w", err)
	}

	result := &DownloadResult{}
	for _, sibling := range modelInfo.Siblings {
		rPath := sibling.RPath
		var list *[]string
		switch {
		case strings.HasSuffix(rPath, ".onnx"):
			list = &result.ModelPaths
		case isExternalData(rPath):
			list = &result.ExternalDataPaths
		case strings.Contains(rPath, "tokenizer") || strings.HasSuffix(rPath, ".json") || strings.HasSuffix(rPath, ".txt"):
			list = &result.TokenizerPaths
		default:
			continue
		}
		if !filepath.IsLocal(rPath) {
			return nil, fmt.Errorf("refusing to download %s: path escapes the destination", rPath)
		}
		// Keep the repository layout so relative external data locations
		// still resolve next to their model.
		path := filepath.Join(destination, filepath.FromSlash(rPath))
		h.logger.Debug("downloading file", "model", modelID, "file", rPath)
		if err := downloadFile(h.client, h.apiKey, h.fileURL(modelID, rPath), path); err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", rPath, err)
		}
		*list = append(*list, path)
	}

	if len(result.ModelPaths) == 0 {
		return nil, fmt.Errorf("no ONNX model found for model ID: %s", modelID)
	}
	return result, nil
}
