package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/maastricht-university/amusement-pipeline/scoring"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

const EnvPrefix = "AMUSE"

type Service struct {
	URL string `yaml:"url"`
}
type Services struct {
	Classifier    Service `yaml:"classifier"`
	Landmarks     Service `yaml:"landmarks"`
	Visualization Service `yaml:"visualization"`
}
type Pipeline struct {
	Name      string `yaml:"name"`
	Version   string `yaml:"version"`
	LogLvl    string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}
type Audio struct {
	SampleRate      int           `yaml:"sample_rate"`
	WindowLength    int           `yaml:"window_length"`
	ClassifyPeriod  time.Duration `yaml:"classify_period"`
	LaughterClasses []int         `yaml:"laughter_classes"`
}
type Features struct {
	BaselineFrames int `yaml:"baseline_frames"`
}
type Smoothing struct {
	Alpha float64 `yaml:"alpha"`
}
type Scoring struct {
	SmileWeights     []float64 `yaml:"smile_weights"`
	LaughterWeights  []float64 `yaml:"laughter_weights"`
	AmusementWeights []float64 `yaml:"amusement_weights"`
}
type Logging struct {
	SampleInterval time.Duration `yaml:"sample_interval"`
	SampleLog      string        `yaml:"sample_log"`
}
type Database struct {
	Path            string `yaml:"path"`
	RequireApproval bool   `yaml:"require_approval"`
}
type Server struct {
	Addr string `yaml:"addr"`
}
type Messaging struct {
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}
type Playlist struct {
	Target time.Duration `yaml:"target"`
	Slack  time.Duration `yaml:"slack"`
}
type Root struct {
	Pipeline  Pipeline  `yaml:"pipeline"`
	Audio     Audio     `yaml:"audio"`
	Features  Features  `yaml:"features"`
	Smoothing Smoothing `yaml:"smoothing"`
	Scoring   Scoring   `yaml:"scoring"`
	Logging   Logging   `yaml:"logging"`
	Services  Services  `yaml:"services"`
	Database  Database  `yaml:"database"`
	Server    Server    `yaml:"server"`
	Messaging Messaging `yaml:"messaging"`
	Playlist  Playlist  `yaml:"playlist"`
	Paths     struct {
		Outputs string `yaml:"outputs"`
	} `yaml:"paths"`
}

func Default() Root {
	var r Root
	r.Pipeline = Pipeline{Name: "amusement-pipeline", Version: "1.0.0", LogLvl: "info", LogFormat: "text"}
	r.Audio = Audio{
		SampleRate:      16000,
		WindowLength:    15600,
		ClassifyPeriod:  500 * time.Millisecond,
		LaughterClasses: []int{13, 15, 18},
	}
	r.Features.BaselineFrames = 60
	r.Smoothing.Alpha = 0.3
	w := scoring.DefaultWeights()
	r.Scoring = Scoring{
		SmileWeights:     w.Smile[:],
		LaughterWeights:  w.Laughter[:],
		AmusementWeights: w.Amusement[:],
	}
	r.Logging = Logging{SampleInterval: 200 * time.Millisecond, SampleLog: filepath.Join("logs", "log.txt")}
	r.Database.Path = "app.db"
	r.Server.Addr = ":5000"
	r.Messaging.Exchange = "amusement"
	r.Playlist = Playlist{Target: 7 * time.Minute, Slack: 30 * time.Second}
	r.Paths.Outputs = "outputs"
	return r
}

// Weights converts the scoring section into fusion weights.
func (r *Root) Weights() (scoring.Weights, error) {
	var w scoring.Weights
	if len(r.Scoring.SmileWeights) != len(w.Smile) {
		return w, fmt.Errorf("%w: scoring.smile_weights needs %d values, got %d", ErrInvalid, len(w.Smile), len(r.Scoring.SmileWeights))
	}
	if len(r.Scoring.LaughterWeights) != len(w.Laughter) {
		return w, fmt.Errorf("%w: scoring.laughter_weights needs %d values, got %d", ErrInvalid, len(w.Laughter), len(r.Scoring.LaughterWeights))
	}
	if len(r.Scoring.AmusementWeights) != len(w.Amusement) {
		return w, fmt.Errorf("%w: scoring.amusement_weights needs %d values, got %d", ErrInvalid, len(w.Amusement), len(r.Scoring.AmusementWeights))
	}
	copy(w.Smile[:], r.Scoring.SmileWeights)
	copy(w.Laughter[:], r.Scoring.LaughterWeights)
	copy(w.Amusement[:], r.Scoring.AmusementWeights)
	if err := w.Validate(); err != nil {
		return w, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return w, nil
}

func (r *Root) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}
	if r.Audio.SampleRate <= 0 {
		bad("audio.sample_rate must be > 0, got %d", r.Audio.SampleRate)
	}
	if r.Audio.WindowLength <= 0 {
		bad("audio.window_length must be > 0, got %d", r.Audio.WindowLength)
	}
	if r.Audio.ClassifyPeriod <= 0 {
		bad("audio.classify_period must be > 0, got %s", r.Audio.ClassifyPeriod)
	}
	for _, c := range r.Audio.LaughterClasses {
		if c < 0 {
			bad("audio.laughter_classes contains negative index %d", c)
		}
	}
	if a := r.Smoothing.Alpha; math.IsNaN(a) || a <= 0 || a > 1 {
		bad("smoothing.alpha must be in (0,1], got %v", a)
	}
	if r.Features.BaselineFrames < 0 {
		bad("features.baseline_frames must be >= 0, got %d", r.Features.BaselineFrames)
	}
	if r.Logging.SampleInterval < 0 {
		bad("logging.sample_interval must be >= 0, got %s", r.Logging.SampleInterval)
	}
	if _, err := r.Weights(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(r.Pipeline.LogFormat) {
	case "", "text", "json":
	default:
		bad("pipeline.log_format must be text or json, got %q", r.Pipeline.LogFormat)
	}
	return errors.Join(errs...)
}

// YAML renders the effective configuration.
func (r *Root) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type options struct {
	path   string
	binder func(v *viper.Viper) error
}

type Option func(*options)

// WithFile loads the given file instead of guessing. The file must exist.
func WithFile(path string) Option {
	return func(o *options) { o.path = path }
}

// WithBinder lets callers bind flags before the config is unmarshalled.
func WithBinder(fn func(v *viper.Viper) error) Option {
	return func(o *options) { o.binder = fn }
}

// Load layers defaults, the config file, a .env file, AMUSE_* environment
// variables and bound flags, in increasing priority, then validates.
func Load(opts ...Option) (*Root, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	def := Default()
	base, err := yaml.Marshal(&def)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(base)); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	path := o.path
	if path == "" {
		path = guess()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		defer f.Close()
		if err := v.MergeConfig(f); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if o.binder != nil {
		if err := o.binder(v); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	var cfg Root
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func guess() string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	candidates := []string{
		filepath.Join("config", env, "config.yaml"),
		"config.yaml",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
