package config

// Config holds app configuration
type Config struct {
	// InputFile is the path of the built game executable to decode
	InputFile string `mapstructure:"input"`

	// ForceCompat is passed to the parser and recorded on the game; it
	// does not change how chunks are decoded
	ForceCompat bool `mapstructure:"force_compat"`

	// Export destinations; empty means the export is skipped
	ImagesDir  string `mapstructure:"images_dir"`
	SoundsDir  string `mapstructure:"sounds_dir"`
	MusicDir   string `mapstructure:"music_dir"`
	BinaryDir  string `mapstructure:"binary_dir"`
	ErrorLog   string `mapstructure:"error_log"`
	ColorTrans bool   `mapstructure:"color_trans"`

	DryRun       bool   `mapstructure:"dry_run"`
	LogLevel     string `mapstructure:"log_level"`
	LogOutputDir string `mapstructure:"log_output_dir"`
}
