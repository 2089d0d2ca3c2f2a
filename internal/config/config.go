package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/kartlab/vehiclesim/internal/input"
	"github.com/kartlab/vehiclesim/pkg/core"
	"github.com/kartlab/vehiclesim/pkg/dynamics"
)

// FileName is the config file looked up in the config directory.
const FileName = "vehiclesim.cfg.json"

// EnvPrefix namespaces environment overrides.
const EnvPrefix = "VEHICLESIM"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
	ExportGeoJSON  bool   `json:"exportGeoJSON" mapstructure:"exportGeoJSON"`
}

// SQLiteConfig holds sqlite backend settings
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// WebSocketConfig points the live telemetry stream at a dashboard server.
// An empty URL disables streaming.
type WebSocketConfig struct {
	URL        string        `json:"url" mapstructure:"url"`
	Secret     string        `json:"secret" mapstructure:"secret"`
	AckTimeout time.Duration `json:"ackTimeout" mapstructure:"ackTimeout"`
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	WebSocket WebSocketConfig `json:"websocket" mapstructure:"websocket"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled        bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName    string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout   time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	MetricInterval time.Duration `json:"metricInterval" mapstructure:"metricInterval"`
	Endpoint       string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure       bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds InfluxDB connection settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// URL returns the server URL built from protocol, host and port.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// APIConfig holds web frontend upload settings
type APIConfig struct {
	ServerURL string `json:"serverUrl" mapstructure:"serverUrl"`
	APIKey    string `json:"apiKey" mapstructure:"apiKey"`
	Upload    bool   `json:"upload" mapstructure:"upload"`
	// Timeout bounds each request; Retries repeats uploads that hit a 5xx.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	Retries int           `json:"retries" mapstructure:"retries"`
}

// DBConfig holds postgres connection settings
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// GraylogConfig holds the GELF log sink settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// SimConfig holds the run cadence
type SimConfig struct {
	Name           string        `json:"name" mapstructure:"name"`
	FixedDeltaTime float64       `json:"fixedDeltaTime" mapstructure:"fixedDeltaTime"`
	FrameRate      float64       `json:"frameRate" mapstructure:"frameRate"`
	FrameJitter    float64       `json:"frameJitter" mapstructure:"frameJitter"`
	MaxFrameDelta  float64       `json:"maxFrameDelta" mapstructure:"maxFrameDelta"`
	Seed           int64         `json:"seed" mapstructure:"seed"`
	Duration       time.Duration `json:"duration" mapstructure:"duration"`
	CaptureEvery   int           `json:"captureEvery" mapstructure:"captureEvery"`
	Realtime       bool          `json:"realtime" mapstructure:"realtime"`
	Debug          bool          `json:"debug" mapstructure:"debug"`
}

// GapConfig is a rectangular hole in the track surface
type GapConfig struct {
	MinX float64 `json:"minX" mapstructure:"minX"`
	MinZ float64 `json:"minZ" mapstructure:"minZ"`
	MaxX float64 `json:"maxX" mapstructure:"maxX"`
	MaxZ float64 `json:"maxZ" mapstructure:"maxZ"`
}

// TrackConfig describes the ground and where it sits on the globe
type TrackConfig struct {
	Name         string         `json:"name" mapstructure:"name"`
	GroundHeight float64        `json:"groundHeight" mapstructure:"groundHeight"`
	Gaps         []GapConfig    `json:"gaps" mapstructure:"gaps"`
	Origin       core.GeoOrigin `json:"origin" mapstructure:"origin"`
}

// VehicleConfig describes one vehicle entry. Omitted tuning fields keep
// dynamics.DefaultConfig values.
type VehicleConfig struct {
	Name       string          `json:"name" mapstructure:"name"`
	Mass       float64         `json:"mass" mapstructure:"mass"`
	Position   core.Position3D `json:"position" mapstructure:"position"`
	Heading    float64         `json:"heading" mapstructure:"heading"`
	RideHeight float64         `json:"rideHeight" mapstructure:"rideHeight"`
	Detached   bool            `json:"detached" mapstructure:"detached"`
	Tuning     dynamics.Config `json:"tuning" mapstructure:"tuning"`
	Script     input.Script    `json:"script" mapstructure:"script"`
}

// DefaultVehicle is a stock kart on the start line at full throttle.
func DefaultVehicle() VehicleConfig {
	return VehicleConfig{
		Name:       "kart",
		Mass:       15,
		Position:   core.Position3D{Y: 0.5},
		RideHeight: 0.5,
		Tuning:     dynamics.DefaultConfig(),
		Script:     input.Script{{At: 0, Vertical: 1}},
	}
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("defaultTag", "practice")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("statusInterval", "1s")

	viper.SetDefault("sim.name", "practice")
	viper.SetDefault("sim.fixedDeltaTime", 0.02)
	viper.SetDefault("sim.frameRate", 60.0)
	viper.SetDefault("sim.frameJitter", 0.0)
	viper.SetDefault("sim.maxFrameDelta", 0.333)
	viper.SetDefault("sim.seed", 1)
	viper.SetDefault("sim.duration", "10s")
	viper.SetDefault("sim.captureEvery", 5)
	viper.SetDefault("sim.realtime", false)
	viper.SetDefault("sim.debug", false)

	viper.SetDefault("track.name", "test-track")
	viper.SetDefault("track.groundHeight", 0.0)
	viper.SetDefault("track.origin.latitude", 0.0)
	viper.SetDefault("track.origin.longitude", 0.0)
	viper.SetDefault("track.origin.altitude", 0.0)

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.upload", false)
	viper.SetDefault("api.timeout", "30s")
	viper.SetDefault("api.retries", 2)

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "vehiclesim")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "vehiclesim")
	viper.SetDefault("influx.bucket", "telemetry")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./runs")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.memory.exportGeoJSON", true)
	viper.SetDefault("storage.sqlite.path", "./vehiclesim.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.websocket.url", "")
	viper.SetDefault("storage.websocket.secret", "")
	viper.SetDefault("storage.websocket.ackTimeout", "10s")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "vehiclesim")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricInterval", "30s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	// VEHICLESIM_STORAGE_TYPE overrides storage.type, and so on.
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// LogLevel is the minimum level for every log sink.
func LogLevel() string { return viper.GetString("logLevel") }

// LogsDir holds session logs, the status file and the influx backup.
func LogsDir() string { return viper.GetString("logsDir") }

// DefaultTag labels runs started without an explicit tag.
func DefaultTag() string { return viper.GetString("defaultTag") }

// StatusInterval is the monitor sampling period.
func StatusInterval() time.Duration { return viper.GetDuration("statusInterval") }

// GetStorageConfig returns the storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
			ExportGeoJSON:  viper.GetBool("storage.memory.exportGeoJSON"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		WebSocket: WebSocketConfig{
			URL:        viper.GetString("storage.websocket.url"),
			Secret:     viper.GetString("storage.websocket.secret"),
			AckTimeout: viper.GetDuration("storage.websocket.ackTimeout"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetAPIConfig returns the web frontend settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
		Upload:    viper.GetBool("api.upload"),
		Timeout:   viper.GetDuration("api.timeout"),
		Retries:   viper.GetInt("api.retries"),
	}
}

// GetDBConfig returns the postgres connection settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetGraylogConfig returns the GELF sink settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetSimConfig returns the run cadence. Duration accepts "90s" style strings.
func GetSimConfig() SimConfig {
	return SimConfig{
		Name:           viper.GetString("sim.name"),
		FixedDeltaTime: viper.GetFloat64("sim.fixedDeltaTime"),
		FrameRate:      viper.GetFloat64("sim.frameRate"),
		FrameJitter:    viper.GetFloat64("sim.frameJitter"),
		MaxFrameDelta:  viper.GetFloat64("sim.maxFrameDelta"),
		Seed:           viper.GetInt64("sim.seed"),
		Duration:       viper.GetDuration("sim.duration"),
		CaptureEvery:   viper.GetInt("sim.captureEvery"),
		Realtime:       viper.GetBool("sim.realtime"),
		Debug:          viper.GetBool("sim.debug"),
	}
}

// GetTrackConfig returns the track layout.
func GetTrackConfig() (TrackConfig, error) {
	c := TrackConfig{
		Name:         viper.GetString("track.name"),
		GroundHeight: viper.GetFloat64("track.groundHeight"),
		Origin: core.GeoOrigin{
			Latitude:  viper.GetFloat64("track.origin.latitude"),
			Longitude: viper.GetFloat64("track.origin.longitude"),
			Altitude:  viper.GetFloat64("track.origin.altitude"),
		},
	}
	if err := viper.UnmarshalKey("track.gaps", &c.Gaps); err != nil {
		return TrackConfig{}, fmt.Errorf("decoding track gaps: %w", err)
	}
	return c, nil
}

// GetVehicleConfigs decodes the vehicles list. Each entry starts from
// DefaultVehicle, so a file only needs the fields it changes. An empty list
// yields a single default vehicle.
func GetVehicleConfigs() ([]VehicleConfig, error) {
	raw := viper.Get("vehicles")
	if raw == nil {
		return []VehicleConfig{DefaultVehicle()}, nil
	}
	entries, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("vehicles must be a list, got %T", raw)
	}
	if len(entries) == 0 {
		return []VehicleConfig{DefaultVehicle()}, nil
	}

	out := make([]VehicleConfig, 0, len(entries))
	for i, entry := range entries {
		vc, err := DecodeVehicle(entry)
		if err != nil {
			return nil, fmt.Errorf("vehicle %d: %w", i, err)
		}
		if vc.Name == "" || vc.Name == DefaultVehicle().Name {
			vc.Name = fmt.Sprintf("kart-%d", i+1)
		}
		out = append(out, vc)
	}
	return out, nil
}

// DecodeVehicle decodes one vehicle entry on top of DefaultVehicle. A script
// in the entry replaces the default script entirely.
func DecodeVehicle(entry any) (VehicleConfig, error) {
	vc := DefaultVehicle()
	if m, ok := entry.(map[string]any); ok {
		if _, hasScript := m["script"]; hasScript {
			vc.Script = nil
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &vc,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return VehicleConfig{}, err
	}
	if err := dec.Decode(entry); err != nil {
		return VehicleConfig{}, err
	}
	return vc, nil
}
