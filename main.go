package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lochside/mmfparse/internal/config"
	"github.com/lochside/mmfparse/internal/export"
	"github.com/lochside/mmfparse/internal/logging"
	"github.com/lochside/mmfparse/internal/parser"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mmfparse",
	Short: "Inspect and extract assets from built Multimedia Fusion games",
	RunE:  run,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")

	// i/o
	rootCmd.Flags().StringP("input", "i", "", "path to the game executable to decode (required)")
	rootCmd.Flags().String("dump-images", "", "directory to export images to as PNG")
	rootCmd.Flags().String("dump-sounds", "", "directory to export sounds to")
	rootCmd.Flags().String("dump-music", "", "directory to export music to")
	rootCmd.Flags().String("dump-binary", "", "directory to export embedded binary files to")
	rootCmd.Flags().String("error-log", "", "path to write the aggregate error log")
	rootCmd.MarkFlagRequired("input")

	// decode settings
	rootCmd.Flags().Bool("force-compat", false, "mark the game as compat (recorded only; decoding is unchanged)")
	rootCmd.Flags().Bool("color-trans", true, "apply transparent-color keying on exported images")

	// other opts
	rootCmd.Flags().String("log-level", "info", "log level (trace, debug, info, warn, error, fatal)")
	rootCmd.Flags().String("log-output-dir", "", "directory to write log files (if set, logs are written to both stderr and file)")
	rootCmd.Flags().Bool("dry-run", false, "decode without writing output (validation)")

	viper.BindPFlag("input", rootCmd.Flags().Lookup("input"))
	viper.BindPFlag("images_dir", rootCmd.Flags().Lookup("dump-images"))
	viper.BindPFlag("sounds_dir", rootCmd.Flags().Lookup("dump-sounds"))
	viper.BindPFlag("music_dir", rootCmd.Flags().Lookup("dump-music"))
	viper.BindPFlag("binary_dir", rootCmd.Flags().Lookup("dump-binary"))
	viper.BindPFlag("error_log", rootCmd.Flags().Lookup("error-log"))
	viper.BindPFlag("force_compat", rootCmd.Flags().Lookup("force-compat"))
	viper.BindPFlag("color_trans", rootCmd.Flags().Lookup("color-trans"))
	viper.BindPFlag("log_level", rootCmd.Flags().Lookup("log-level"))
	viper.BindPFlag("log_output_dir", rootCmd.Flags().Lookup("log-output-dir"))
	viper.BindPFlag("dry_run", rootCmd.Flags().Lookup("dry-run"))
}

// initConfig reads in config file and environment variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "mmfparse"))
		}
		viper.AddConfigPath("/etc/mmfparse")
		viper.SetConfigName("config")
		viper.SetConfigType("toml")
	}

	viper.SetEnvPrefix("MMFPARSE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// run decodes the given executable and performs the requested exports
func run(cmd *cobra.Command, args []string) error {
	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := logging.Setup(cfg.LogLevel, cfg.LogOutputDir); err != nil {
		return fmt.Errorf("could not set up logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	buf, err := os.ReadFile(cfg.InputFile)
	if err != nil {
		return fmt.Errorf("failed to read game executable: %w", err)
	}

	game, err := parser.Parse(ctx, cfg.InputFile, buf, parser.Options{
		ForceCompat: cfg.ForceCompat,
	})

	var decodeErrs []error
	if err != nil {
		decodeErrs = append(decodeErrs, err)
		slog.Error(fmt.Sprintf("error decoding %s", cfg.InputFile), "error", err)
		if game == nil || game.Header == nil {
			return nil
		}
		slog.Warn("continuing with the partial tree")
	}

	if cfg.DryRun {
		slog.Info("dry run, skipping exports")
		return nil
	}

	if cfg.ImagesDir != "" {
		n, err := export.Images(game, cfg.ImagesDir, cfg.ColorTrans)
		if err != nil {
			decodeErrs = append(decodeErrs, err)
			slog.Error("image export failed", "error", err)
		}
		slog.Info("exported images", "count", n, "dir", cfg.ImagesDir)
	}
	if cfg.SoundsDir != "" {
		n, err := export.Sounds(game, cfg.SoundsDir)
		if err != nil {
			decodeErrs = append(decodeErrs, err)
			slog.Error("sound export failed", "error", err)
		}
		slog.Info("exported sounds", "count", n, "dir", cfg.SoundsDir)
	}
	if cfg.MusicDir != "" {
		n, err := export.Music(game, cfg.MusicDir)
		if err != nil {
			decodeErrs = append(decodeErrs, err)
			slog.Error("music export failed", "error", err)
		}
		slog.Info("exported music", "count", n, "dir", cfg.MusicDir)
	}
	if cfg.BinaryDir != "" {
		n, err := export.Binary(game, cfg.BinaryDir)
		if err != nil {
			decodeErrs = append(decodeErrs, err)
			slog.Error("binary export failed", "error", err)
		}
		slog.Info("exported binary files", "count", n, "dir", cfg.BinaryDir)
	}
	if cfg.ErrorLog != "" {
		if err := export.ErrorLog(cfg.ErrorLog, decodeErrs); err != nil {
			slog.Error("could not write error log", "error", err)
		}
	}

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
