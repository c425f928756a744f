package downloader

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// MockModelSource is a mock implementation of the ModelSource interface for testing.
type MockModelSource struct {
	mockDownloadModel func(modelID string, destination string) (*DownloadResult, error)
}

func (m *MockModelSource) DownloadModel(modelID string, destination string) (*DownloadResult, error) {
	if m.mockDownloadModel != nil {
		return m.mockDownloadModel(modelID, destination)
	}
	return nil, errors.New("DownloadModel not implemented for mock")
}

func TestNewDownloader(t *testing.T) {
	mockSource := &MockModelSource{}
	d := NewDownloader(mockSource)

	if d == nil {
		t.Fatal("NewDownloader returned nil")
	}
	if d.source != mockSource {
		t.Errorf("NewDownloader did not set the correct ModelSource")
	}
}

func TestDownloader_Download(t *testing.T) {
	tests := []struct {
		name          string
		mockResult    *DownloadResult
		mockError     error
		expectedError bool
	}{
		{
			name: "Successful download",
			mockResult: &DownloadResult{
				ModelPaths:        []string{"/tmp/download/model.onnx"},
				ExternalDataPaths: []string{"/tmp/download/model.onnx_data"},
			},
		},
		{
			name:          "Download with error",
			mockError:     errors.New("mock download error"),
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDownloader(&MockModelSource{
				mockDownloadModel: func(string, string) (*DownloadResult, error) {
					return tt.mockResult, tt.mockError
				},
			})

			result, err := d.Download("test-model", "/tmp/download")
			if tt.expectedError {
				if err == nil {
					t.Errorf("Expected an error, but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, but got: %v", err)
			}
			if len(result.ModelPaths) != 1 || result.ModelPaths[0] != tt.mockResult.ModelPaths[0] {
				t.Errorf("Expected ModelPaths %v, got %v", tt.mockResult.ModelPaths, result.ModelPaths)
			}
		})
	}
}

func Test_downloadFile(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name           string
		apiKey         string
		serverHandler  http.HandlerFunc
		fileName       string
		expectedErrMsg string
	}{
		{
			name: "Successful download",
			serverHandler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = fmt.Fprint(w, "test content")
			},
			fileName: "test.txt",
		},
		{
			name:   "Bearer token is sent",
			apiKey: "secret",
			serverHandler: func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer secret" {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				_, _ = fmt.Fprint(w, "test content")
			},
			fileName: "nested/auth.txt",
		},
		{
			name: "HTTP error status",
			serverHandler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "Not Found", http.StatusNotFound)
			},
			fileName:       "error.txt",
			expectedErrMsg: "status code 404",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.serverHandler)
			defer server.Close()

			filePath := filepath.Join(tempDir, tt.fileName)
			err := downloadFile(server.Client(), tt.apiKey, server.URL, filePath)

			if tt.expectedErrMsg != "" {
				if err == nil || !strings.Contains(err.Error(), tt.expectedErrMsg) {
					t.Errorf("Expected error containing %q, got %v", tt.expectedErrMsg, err)
				}
				if _, statErr := os.Stat(filePath); !os.IsNotExist(statErr) {
					t.Errorf("File %s should not exist on error", filePath)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, but got: %v", err)
			}
			content, readErr := os.ReadFile(filePath)
			if readErr != nil {
				t.Fatalf("Failed to read downloaded file: %v", readErr)
			}
			if string(content) != "test content" {
				t.Errorf("Downloaded content mismatch: got %q, want \"test content\"", string(content))
			}
		})
	}
}

func Test_copyFile(t *testing.T) {
	for _, input := range []string{"", "hello world"} {
		dst := &bytes.Buffer{}
		n, err := copyFile(bytes.NewBufferString(input), dst)
		if err != nil {
			t.Fatalf("copyFile(%q) failed: %v", input, err)
		}
		if n != int64(len(input)) || dst.String() != input {
			t.Errorf("copyFile(%q) copied %d bytes %q", input, n, dst.String())
		}
	}
}

func TestIsExternalData(t *testing.T) {
	for path, want := range map[string]bool{
		"model.onnx_data":      true,
		"onnx/model.onnx.data": true,
		"weights.data":         true,
		"model.onnx":           false,
		"config.json":          false,
	} {
		if got := isExternalData(path); got != want {
			t.Errorf("isExternalData(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestHuggingFaceSource_DownloadModel(t *testing.T) {
	tests := []struct {
		name          string
		modelID       string
		apiKey        string
		apiHandler    http.HandlerFunc
		cdnHandler    http.HandlerFunc
		expectedModel []string
		expectedData  []string
		expectedToken []string
		expectedError string
	}{
		{
			name:    "Model with external data",
			modelID: "test-org/test-model",
			apiHandler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = fmt.Fprint(w, `{"modelId": "test-org/test-model","siblings": [`+
					`{"rfilename": "onnx/model.onnx"},{"rfilename": "onnx/model.onnx_data"},`+
					`{"rfilename": "tokenizer.json"},{"rfilename": "README.md"}]}`)
			},
			cdnHandler: func(w http.ResponseWriter, r *http.Request) {
				if !strings.HasPrefix(r.URL.Path, "/test-org/test-model/resolve/main/") {
					http.Error(w, "Not Found", http.StatusNotFound)
					return
				}
				_, _ = fmt.Fprint(w, "content of "+filepath.Base(r.URL.Path))
			},
			expectedModel: []string{"onnx/model.onnx"},
			expectedData:  []string{"onnx/model.onnx_data"},
			expectedToken: []string{"tokenizer.json"},
		},
		{
			name:    "Authenticated download",
			modelID: "test-org/private",
			apiKey:  "hf_key",
			apiHandler: func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer hf_key" {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				_, _ = fmt.Fprint(w, `{"siblings": [{"rfilename": "model.onnx"}]}`)
			},
			cdnHandler: func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer hf_key" {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				_, _ = fmt.Fprint(w, "model")
			},
			expectedModel: []string{"model.onnx"},
		},
		{
			name:    "Model not found on HuggingFace API",
			modelID: "nonexistent/model",
			apiHandler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "Not Found", http.StatusNotFound)
			},
			expectedError: "HuggingFace API returned non-OK status: 404 Not Found",
		},
		{
			name:    "No ONNX model in repository",
			modelID: "test-org/no-onnx",
			apiHandler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = fmt.Fprint(w, `{"siblings": [{"rfilename": "tokenizer.json"}]}`)
			},
			cdnHandler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = fmt.Fprint(w, "tokenizer content")
			},
			expectedError: "no ONNX model found for model ID: test-org/no-onnx",
		},
		{
			name:    "Escaping sibling path",
			modelID: "test-org/evil",
			apiHandler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = fmt.Fprint(w, `{"siblings": [{"rfilename": "../model.onnx"}]}`)
			},
			expectedError: "path escapes the destination",
		},
		{
			name:    "CDN download failure",
			modelID: "test-org/cdn-fail",
			apiHandler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = fmt.Fprint(w, `{"siblings": [{"rfilename": "model.onnx"}]}`)
			},
			cdnHandler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			},
			expectedError: "failed to download model.onnx: failed to download file from",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			apiServer := httptest.NewServer(tt.apiHandler)
			defer apiServer.Close()
			cdnHandler := tt.cdnHandler
			if cdnHandler == nil {
				cdnHandler = func(w http.ResponseWriter, r *http.Request) {
					http.Error(w, "Not Found", http.StatusNotFound)
				}
			}
			cdnServer := httptest.NewServer(cdnHandler)
			defer cdnServer.Close()

			source := NewHuggingFaceSource(tt.apiKey)
			source.apiURL = apiServer.URL + "/"
			source.cdnURL = cdnServer.URL + "/"

			result, err := source.DownloadModel(tt.modelID, tempDir)
			if tt.expectedError != "" {
				if err == nil || !strings.Contains(err.Error(), tt.expectedError) {
					t.Errorf("Expected error containing %q, got %v", tt.expectedError, err)
				}
				if result != nil {
					t.Errorf("Expected nil result on error, got %v", result)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, but got: %v", err)
			}

			check := func(kind string, got, want []string) {
				t.Helper()
				if len(got) != len(want) {
					t.Fatalf("Expected %d %s paths, got %v", len(want), kind, got)
				}
				for i, rel := range want {
					path := filepath.Join(tempDir, filepath.FromSlash(rel))
					if got[i] != path {
						t.Errorf("Expected %s path %s, got %s", kind, path, got[i])
					}
					if _, err := os.Stat(path); err != nil {
						t.Errorf("Downloaded %s file is missing: %v", kind, err)
					}
				}
			}
			check("model", result.ModelPaths, tt.expectedModel)
			check("external data", result.ExternalDataPaths, tt.expectedData)
			check("tokenizer", result.TokenizerPaths, tt.expectedToken)
		})
	}
}
