package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BioHazard786/warpcall/internal/framecipher"
	"gopkg.in/yaml.v3"
)

// Default configuration values (production)
const (
	DefaultDomain      = "warpcall.qzz.io"
	DefaultSTUN        = "stun:stun.l.google.com:19302"
	DefaultTURN        = "" // Optional, empty by default
	DefaultFramePolicy = "passthrough"
	DefaultVideoFPS    = 30
	DefaultAudioFrame  = 20 * time.Millisecond
)

// Config holds application configuration
type Config struct {
	// Domain is the relay domain
	Domain string

	// RelayURL is constructed from domain unless set explicitly
	RelayURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	// DisplayName is announced to the room on join
	DisplayName string

	// FramePolicy decides what happens to media before a peer key exists
	FramePolicy framecipher.Policy

	// MetricsAddr enables the Prometheus endpoint when non-empty
	MetricsAddr string

	// Synthetic capture device
	VideoFPS      int
	AudioFrame    time.Duration
	ScreenCapture bool
}

// Options for loading config with CLI flag overrides
type Options struct {
	ConfigFile  string
	Domain      string
	RelayURL    string
	STUNServer  string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool
	DisplayName string
	FramePolicy string
	MetricsAddr string
	NoScreen    bool
}

// fileConfig is the YAML layout of the optional config file.
type fileConfig struct {
	Domain      string `yaml:"domain"`
	RelayURL    string `yaml:"relay_url"`
	DisplayName string `yaml:"display_name"`
	FramePolicy string `yaml:"frame_policy"`
	MetricsAddr string `yaml:"metrics_addr"`
	ICE         struct {
		STUN       string `yaml:"stun"`
		TURN       string `yaml:"turn"`
		TURNUser   string `yaml:"turn_user"`
		TURNPass   string `yaml:"turn_pass"`
		ForceRelay bool   `yaml:"force_relay"`
	} `yaml:"ice"`
	Capture struct {
		VideoFPS     int   `yaml:"video_fps"`
		AudioFrameMS int   `yaml:"audio_frame_ms"`
		Screen       *bool `yaml:"screen"`
	} `yaml:"capture"`
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Config file (--config or WARPCALL_CONFIG)
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	path := first(opts.ConfigFile, os.Getenv("WARPCALL_CONFIG"))

	var file fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	domain := first(opts.Domain, os.Getenv("DOMAIN"), file.Domain, DefaultDomain)

	relayURL := first(opts.RelayURL, os.Getenv("RELAY_URL"), file.RelayURL)
	if relayURL == "" {
		relayURL = fmt.Sprintf("wss://%s/ws", domain)
	}

	policyName := first(opts.FramePolicy, os.Getenv("FRAME_POLICY"), file.FramePolicy, DefaultFramePolicy)
	policy, err := framecipher.ParsePolicy(policyName)
	if err != nil {
		return nil, err
	}

	fps := DefaultVideoFPS
	if file.Capture.VideoFPS > 0 {
		fps = file.Capture.VideoFPS
	}
	if v, err := strconv.Atoi(os.Getenv("VIDEO_FPS")); err == nil && v > 0 {
		fps = v
	}

	audioFrame := DefaultAudioFrame
	if file.Capture.AudioFrameMS > 0 {
		audioFrame = time.Duration(file.Capture.AudioFrameMS) * time.Millisecond
	}

	screen := true
	if file.Capture.Screen != nil {
		screen = *file.Capture.Screen
	}
	if opts.NoScreen {
		screen = false
	}

	forceRelay := opts.ForceRelay || file.ICE.ForceRelay
	if v, err := strconv.ParseBool(os.Getenv("FORCE_RELAY")); err == nil && v {
		forceRelay = true
	}

	return &Config{
		Domain:        domain,
		RelayURL:      relayURL,
		STUNServer:    first(opts.STUNServer, os.Getenv("STUN_SERVER"), file.ICE.STUN, DefaultSTUN),
		TURNServer:    first(opts.TURNServer, os.Getenv("TURN_SERVER"), file.ICE.TURN, DefaultTURN),
		TURNUser:      first(opts.TURNUser, os.Getenv("TURN_USERNAME"), file.ICE.TURNUser),
		TURNPass:      first(opts.TURNPass, os.Getenv("TURN_PASSWORD"), file.ICE.TURNPass),
		ForceRelay:    forceRelay,
		DisplayName:   first(opts.DisplayName, os.Getenv("DISPLAY_NAME"), file.DisplayName),
		FramePolicy:   policy,
		MetricsAddr:   first(opts.MetricsAddr, os.Getenv("METRICS_ADDR"), file.MetricsAddr),
		VideoFPS:      fps,
		AudioFrame:    audioFrame,
		ScreenCapture: screen,
	}, nil
}

// first returns the first non-empty value.
func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// GetRoomLink returns the webapp URL for a room code
func (c *Config) GetRoomLink(code string) string {
	return fmt.Sprintf("https://%s/r/%s", c.Domain, code)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
