package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zerfoo/ztar/internal/envconfig"
	"github.com/zerfoo/ztar/internal/logutil"
	"github.com/zerfoo/ztar/pkg/allocator"
	"github.com/zerfoo/ztar/pkg/archive"
	"github.com/zerfoo/ztar/pkg/converter"
	"github.com/zerfoo/ztar/pkg/downloader"
	"github.com/zerfoo/ztar/pkg/inspector"
	"github.com/zerfoo/ztar/pkg/registry"
)

func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ztar",
		Short: "Pack ONNX models into archives with their large tensors stored as blobs",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true

			level := slog.LevelInfo
			if envconfig.Debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), level))
		},
	}

	cobra.EnableCommandSorting = false

	packCmd := &cobra.Command{
		Use:   "pack INPUT... OUTPUT",
		Short: "Pack one or more models into an archive",
		Args:  cobra.MinimumNArgs(2),
		RunE:  PackHandler,
	}
	packCmd.Flags().Float64("error", envconfig.RelativeError, "Relative error tolerance recorded with every blob")
	packCmd.Flags().Int("size-limit", envconfig.SizeLimit, "Minimum tensor byte length moved out of the model")
	packCmd.Flags().String("allocation", envconfig.Allocation, "Blob placement: shared or per-tensor")
	packCmd.Flags().String("format", converter.FormatAutodetect, fmt.Sprintf("Input format: %s or one of %s", converter.FormatAutodetect, strings.Join(registry.Names(), ", ")))

	unpackCmd := &cobra.Command{
		Use:   "unpack ARCHIVE DIR",
		Short: "Extract an archive and restore external data files",
		Args:  cobra.ExactArgs(2),
		RunE:  UnpackHandler,
	}
	unpackCmd.Flags().Bool("verify", false, "Check every extracted model's external data ranges")

	inspectCmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Summarize an ONNX model or an archive",
		Args:  cobra.ExactArgs(1),
		RunE:  InspectHandler,
	}

	downloadCmd := &cobra.Command{
		Use:   "download",
		Short: "Download an ONNX model from the Hugging Face Hub",
		Args:  cobra.NoArgs,
		RunE:  DownloadHandler,
	}
	downloadCmd.Flags().String("model", "", "HuggingFace model ID (e.g., 'openai/whisper-tiny.en')")
	downloadCmd.Flags().String("output", ".", "Output directory for downloaded files")
	downloadCmd.Flags().String("api-key", "", "HuggingFace API key (defaults to HF_API_KEY)")
	_ = downloadCmd.MarkFlagRequired("model")

	rootCmd.AddCommand(packCmd, unpackCmd, inspectCmd, downloadCmd)
	return rootCmd
}

func packOptions(cmd *cobra.Command) (converter.Options, error) {
	opts := converter.DefaultOptions()

	relErr, err := cmd.Flags().GetFloat64("error")
	if err != nil {
		return opts, err
	}
	if relErr < 0 {
		return opts, fmt.Errorf("--error must not be negative, got %v", relErr)
	}
	sizeLimit, err := cmd.Flags().GetInt("size-limit")
	if err != nil {
		return opts, err
	}
	if sizeLimit < 1 {
		return opts, fmt.Errorf("--size-limit must be at least 1, got %d", sizeLimit)
	}
	alloc, err := cmd.Flags().GetString("allocation")
	if err != nil {
		return opts, err
	}
	mode, err := allocator.ParseMode(alloc)
	if err != nil {
		return opts, err
	}

	opts.RelativeError = relErr
	opts.SizeLimit = sizeLimit
	opts.Allocation = mode
	opts.Logger = slog.Default()
	return opts, nil
}

func PackHandler(cmd *cobra.Command, args []string) (err error) {
	inputs, output := args[:len(args)-1], args[len(args)-1]

	opts, err := packOptions(cmd)
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}

	w, err := archive.Create(output)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(output)
		}
	}()

	results, err := converter.PackFiles(inputs, format, w, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, res := range results {
		fmt.Fprintf(out, "%s: %d of %d tensors externalized (%d bytes)\n", res.Name, res.Externalized, res.Tensors, res.ExternalBytes)
	}
	fmt.Fprintf(out, "Wrote %s\n", output)
	return nil
}

func UnpackHandler(cmd *cobra.Command, args []string) error {
	path, dest := args[0], args[1]
	verify, err := cmd.Flags().GetBool("verify")
	if err != nil {
		return err
	}

	r, err := archive.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.ExtractFiles(dest); err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := r.ExtractBlobs(ctx, dest); err != nil {
		return err
	}
	slog.Debug("extracted archive", "path", path, "files", len(r.Files()), "blobs", len(r.Blobs()))

	if verify {
		for _, f := range r.Files() {
			if !strings.EqualFold(filepath.Ext(f.Name), ".onnx") {
				continue
			}
			model := filepath.Join(dest, filepath.FromSlash(f.Name))
			if err := converter.Verify(model); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Verified %s\n", f.Name)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Extracted %d files and %d blobs to %s\n", len(r.Files()), len(r.Blobs()), dest)
	return nil
}

func InspectHandler(cmd *cobra.Command, args []string) error {
	path := args[0]
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".onnx":
		return inspector.InspectONNX(path, cmd.OutOrStdout())
	case ".ztar", ".zip":
		return inspector.InspectArchive(path, cmd.OutOrStdout())
	default:
		return fmt.Errorf("%w: cannot inspect %q files", registry.ErrUnsupportedFormat, ext)
	}
}

func DownloadHandler(cmd *cobra.Command, args []string) error {
	modelID, err := cmd.Flags().GetString("model")
	if err != nil {
		return err
	}
	if modelID == "" {
		return errors.New("--model must not be empty")
	}
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	apiKey, err := cmd.Flags().GetString("api-key")
	if err != nil {
		return err
	}
	if apiKey == "" {
		apiKey = envconfig.HFAPIKey
	}

	d := downloader.NewDownloader(downloader.NewHuggingFaceSource(apiKey))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Downloading model '%s' to '%s'...\n", modelID, outputPath)
	result, err := d.Download(modelID, outputPath)
	if err != nil {
		return err
	}

	for _, p := range result.ModelPaths {
		fmt.Fprintf(out, "Downloaded model: %s\n", p)
	}
	for _, p := range result.ExternalDataPaths {
		fmt.Fprintf(out, "Downloaded external data: %s\n", p)
	}
	if len(result.TokenizerPaths) > 0 {
		fmt.Fprintln(out, "Downloaded tokenizer files:")
		for _, p := range result.TokenizerPaths {
			fmt.Fprintf(out, "  - %s\n", p)
		}
	}
	return nil
}
