package config

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/charlie0129/battplug/pkg/utils/ptr"
)

const DefaultMarkerPath = "/var/lib/battplug/calibrated"

var (
	defaultFileConfig = &RawFileConfig{
		LowThreshold:       ptr.To(30),
		HighThreshold:      ptr.To(80),
		AllowNonRootAccess: ptr.To(false),
		DryRun:             ptr.To(false),
		MCPListen:          ptr.To(""),
		Vigilance: &RawVigilance{
			Low:   ptr.To(10),
			High:  ptr.To(25),
			Grace: ptr.To(Duration(5 * time.Second)),
		},
		Monitor: &RawMonitor{
			ChangeLogThreshold: ptr.To(1),
			PrecipitousDrop:    ptr.To(10),
			PollTimeout:        ptr.To(Duration(4 * time.Second)),
			WakeBackoff:        ptr.To(Duration(time.Second)),
		},
		Calibration: &RawCalibration{
			Enabled:          ptr.To(false),
			Cycles:           ptr.To(3),
			ChargeTo:         ptr.To(100),
			DischargeTo:      ptr.To(10),
			HardFloor:        ptr.To(5),
			PollInterval:     ptr.To(Duration(time.Minute)),
			MaxCharge:        ptr.To(Duration(4 * time.Hour)),
			MaxDischarge:     ptr.To(Duration(8 * time.Hour)),
			Hold:             ptr.To(Duration(2 * time.Hour)),
			Pause:            ptr.To(Duration(time.Minute)),
			NotifyOnComplete: ptr.To(true),
			MarkerPath:       ptr.To(DefaultMarkerPath),
		},
		Plug: &RawPlug{
			Driver:         ptr.To(DriverExec),
			CommandTimeout: ptr.To(Duration(10 * time.Second)),
			RedisAddr:      ptr.To("127.0.0.1:6379"),
			RedisStateKey:  ptr.To("plug"),
			RedisCmdKey:    ptr.To("plug:command"),
		},
		Notify: &RawNotify{
			PushoverToken: ptr.To(""),
			PushoverUser:  ptr.To(""),
		},
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	LowThreshold       *int            `json:"lowThreshold,omitempty" yaml:"lowThreshold,omitempty"`
	HighThreshold      *int            `json:"highThreshold,omitempty" yaml:"highThreshold,omitempty"`
	AllowNonRootAccess *bool           `json:"allowNonRootAccess,omitempty" yaml:"allowNonRootAccess,omitempty"`
	DryRun             *bool           `json:"dryRun,omitempty" yaml:"dryRun,omitempty"`
	MCPListen          *string         `json:"mcpListen,omitempty" yaml:"mcpListen,omitempty"`
	Vigilance          *RawVigilance   `json:"vigilance,omitempty" yaml:"vigilance,omitempty"`
	Monitor            *RawMonitor     `json:"monitor,omitempty" yaml:"monitor,omitempty"`
	Calibration        *RawCalibration `json:"calibration,omitempty" yaml:"calibration,omitempty"`
	Plug               *RawPlug        `json:"plug,omitempty" yaml:"plug,omitempty"`
	Notify             *RawNotify      `json:"notify,omitempty" yaml:"notify,omitempty"`
}

type RawVigilance struct {
	Low   *int      `json:"low,omitempty" yaml:"low,omitempty"`
	High  *int      `json:"high,omitempty" yaml:"high,omitempty"`
	Grace *Duration `json:"grace,omitempty" yaml:"grace,omitempty"`
}

type RawMonitor struct {
	ChangeLogThreshold *int      `json:"changeLogThreshold,omitempty" yaml:"changeLogThreshold,omitempty"`
	PrecipitousDrop    *int      `json:"precipitousDrop,omitempty" yaml:"precipitousDrop,omitempty"`
	PollTimeout        *Duration `json:"pollTimeout,omitempty" yaml:"pollTimeout,omitempty"`
	WakeBackoff        *Duration `json:"wakeBackoff,omitempty" yaml:"wakeBackoff,omitempty"`
}

type RawCalibration struct {
	Enabled          *bool     `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Cycles           *int      `json:"cycles,omitempty" yaml:"cycles,omitempty"`
	ChargeTo         *int      `json:"chargeTo,omitempty" yaml:"chargeTo,omitempty"`
	DischargeTo      *int      `json:"dischargeTo,omitempty" yaml:"dischargeTo,omitempty"`
	HardFloor        *int      `json:"hardFloor,omitempty" yaml:"hardFloor,omitempty"`
	PollInterval     *Duration `json:"pollInterval,omitempty" yaml:"pollInterval,omitempty"`
	MaxCharge        *Duration `json:"maxCharge,omitempty" yaml:"maxCharge,omitempty"`
	MaxDischarge     *Duration `json:"maxDischarge,omitempty" yaml:"maxDischarge,omitempty"`
	Hold             *Duration `json:"hold,omitempty" yaml:"hold,omitempty"`
	Pause            *Duration `json:"pause,omitempty" yaml:"pause,omitempty"`
	NotifyOnComplete *bool     `json:"notifyOnComplete,omitempty" yaml:"notifyOnComplete,omitempty"`
	MarkerPath       *string   `json:"markerPath,omitempty" yaml:"markerPath,omitempty"`
}

type RawPlug struct {
	Driver         *string   `json:"driver,omitempty" yaml:"driver,omitempty"`
	OnCommand      []string  `json:"onCommand,omitempty" yaml:"onCommand,omitempty"`
	OffCommand     []string  `json:"offCommand,omitempty" yaml:"offCommand,omitempty"`
	StatusCommand  []string  `json:"statusCommand,omitempty" yaml:"statusCommand,omitempty"`
	CommandTimeout *Duration `json:"commandTimeout,omitempty" yaml:"commandTimeout,omitempty"`
	RedisAddr      *string   `json:"redisAddr,omitempty" yaml:"redisAddr,omitempty"`
	RedisStateKey  *string   `json:"redisStateKey,omitempty" yaml:"redisStateKey,omitempty"`
	RedisCmdKey    *string   `json:"redisCommandKey,omitempty" yaml:"redisCommandKey,omitempty"`
}

type RawNotify struct {
	PushoverToken *string `json:"pushoverToken,omitempty" yaml:"pushoverToken,omitempty"`
	PushoverUser  *string `json:"pushoverUser,omitempty" yaml:"pushoverUser,omitempty"`
}

// NewRawFileConfigFromConfig flattens c into a fully populated raw config
// with push credentials redacted.
func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	v := c.Vigilance()
	m := c.Monitor()
	cal := c.Calibration()
	p := c.Plug()
	n := c.Notify()

	rawConfig := &RawFileConfig{
		LowThreshold:       ptr.To(c.LowThreshold()),
		HighThreshold:      ptr.To(c.HighThreshold()),
		AllowNonRootAccess: ptr.To(c.AllowNonRootAccess()),
		DryRun:             ptr.To(c.DryRun()),
		MCPListen:          ptr.To(c.MCPListen()),
		Vigilance: &RawVigilance{
			Low:   ptr.To(v.Low),
			High:  ptr.To(v.High),
			Grace: ptr.To(Duration(v.Grace)),
		},
		Monitor: &RawMonitor{
			ChangeLogThreshold: ptr.To(m.ChangeLogThreshold),
			PrecipitousDrop:    ptr.To(m.PrecipitousDrop),
			PollTimeout:        ptr.To(Duration(m.PollTimeout)),
			WakeBackoff:        ptr.To(Duration(m.WakeBackoff)),
		},
		Calibration: &RawCalibration{
			Enabled:          ptr.To(cal.Enabled),
			Cycles:           ptr.To(cal.Cycles),
			ChargeTo:         ptr.To(cal.ChargeTo),
			DischargeTo:      ptr.To(cal.DischargeTo),
			HardFloor:        ptr.To(cal.HardFloor),
			PollInterval:     ptr.To(Duration(cal.PollInterval)),
			MaxCharge:        ptr.To(Duration(cal.MaxCharge)),
			MaxDischarge:     ptr.To(Duration(cal.MaxDischarge)),
			Hold:             ptr.To(Duration(cal.Hold)),
			Pause:            ptr.To(Duration(cal.Pause)),
			NotifyOnComplete: ptr.To(cal.NotifyOnComplete),
			MarkerPath:       ptr.To(cal.MarkerPath),
		},
		Plug: &RawPlug{
			Driver:         ptr.To(p.Driver),
			OnCommand:      p.OnCommand,
			OffCommand:     p.OffCommand,
			StatusCommand:  p.StatusCommand,
			CommandTimeout: ptr.To(Duration(p.CommandTimeout)),
			RedisAddr:      ptr.To(p.RedisAddr),
			RedisStateKey:  ptr.To(p.RedisStateKey),
			RedisCmdKey:    ptr.To(p.RedisCmdKey),
		},
		Notify: &RawNotify{
			// Secrets stay in the file.
			PushoverToken: ptr.To(redact(n.PushoverToken)),
			PushoverUser:  ptr.To(redact(n.PushoverUser)),
		},
	}

	return rawConfig, nil
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "<redacted>"
}

func pick[T any](v, def *T) T {
	if v != nil {
		return *v
	}
	return *def
}

func (f *File) LowThreshold() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return pick(f.c.LowThreshold, defaultFileConfig.LowThreshold)
}

func (f *File) HighThreshold() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return pick(f.c.HighThreshold, defaultFileConfig.HighThreshold)
}

func (f *File) AllowNonRootAccess() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return pick(f.c.AllowNonRootAccess, defaultFileConfig.AllowNonRootAccess)
}

func (f *File) DryRun() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return pick(f.c.DryRun, defaultFileConfig.DryRun)
}

func (f *File) MCPListen() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return pick(f.c.MCPListen, defaultFileConfig.MCPListen)
}

func (f *File) Vigilance() Vigilance {
	f.mu.RLock()
	defer f.mu.RUnlock()

	raw, def := f.c.Vigilance, defaultFileConfig.Vigilance
	if raw == nil {
		raw = &RawVigilance{}
	}

	return Vigilance{
		Low:   pick(raw.Low, def.Low),
		High:  pick(raw.High, def.High),
		Grace: time.Duration(pick(raw.Grace, def.Grace)),
	}
}

func (f *File) Monitor() Monitor {
	f.mu.RLock()
	defer f.mu.RUnlock()

	raw, def := f.c.Monitor, defaultFileConfig.Monitor
	if raw == nil {
		raw = &RawMonitor{}
	}

	return Monitor{
		ChangeLogThreshold: pick(raw.ChangeLogThreshold, def.ChangeLogThreshold),
		PrecipitousDrop:    pick(raw.PrecipitousDrop, def.PrecipitousDrop),
		PollTimeout:        time.Duration(pick(raw.PollTimeout, def.PollTimeout)),
		WakeBackoff:        time.Duration(pick(raw.WakeBackoff, def.WakeBackoff)),
	}
}

func (f *File) Calibration() Calibration {
	f.mu.RLock()
	defer f.mu.RUnlock()

	raw, def := f.c.Calibration, defaultFileConfig.Calibration
	if raw == nil {
		raw = &RawCalibration{}
	}

	return Calibration{
		Enabled:          pick(raw.Enabled, def.Enabled),
		Cycles:           pick(raw.Cycles, def.Cycles),
		ChargeTo:         pick(raw.ChargeTo, def.ChargeTo),
		DischargeTo:      pick(raw.DischargeTo, def.DischargeTo),
		HardFloor:        pick(raw.HardFloor, def.HardFloor),
		PollInterval:     time.Duration(pick(raw.PollInterval, def.PollInterval)),
		MaxCharge:        time.Duration(pick(raw.MaxCharge, def.MaxCharge)),
		MaxDischarge:     time.Duration(pick(raw.MaxDischarge, def.MaxDischarge)),
		Hold:             time.Duration(pick(raw.Hold, def.Hold)),
		Pause:            time.Duration(pick(raw.Pause, def.Pause)),
		NotifyOnComplete: pick(raw.NotifyOnComplete, def.NotifyOnComplete),
		MarkerPath:       pick(raw.MarkerPath, def.MarkerPath),
	}
}

func (f *File) Plug() Plug {
	f.mu.RLock()
	defer f.mu.RUnlock()

	raw, def := f.c.Plug, defaultFileConfig.Plug
	if raw == nil {
		raw = &RawPlug{}
	}

	return Plug{
		Driver:         pick(raw.Driver, def.Driver),
		OnCommand:      append([]string(nil), raw.OnCommand...),
		OffCommand:     append([]string(nil), raw.OffCommand...),
		StatusCommand:  append([]string(nil), raw.StatusCommand...),
		CommandTimeout: time.Duration(pick(raw.CommandTimeout, def.CommandTimeout)),
		RedisAddr:      pick(raw.RedisAddr, def.RedisAddr),
		RedisStateKey:  pick(raw.RedisStateKey, def.RedisStateKey),
		RedisCmdKey:    pick(raw.RedisCmdKey, def.RedisCmdKey),
	}
}

func (f *File) Notify() Notify {
	f.mu.RLock()
	defer f.mu.RUnlock()

	raw, def := f.c.Notify, defaultFileConfig.Notify
	if raw == nil {
		raw = &RawNotify{}
	}

	return Notify{
		PushoverToken: pick(raw.PushoverToken, def.PushoverToken),
		PushoverUser:  pick(raw.PushoverUser, def.PushoverUser),
	}
}

func (f *File) SetThresholds(low, high int) error {
	if err := validateThresholds(low, high); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.LowThreshold = ptr.To(low)
	f.c.HighThreshold = ptr.To(high)

	return nil
}

func validateThresholds(low, high int) error {
	if low < 0 || high > 100 {
		return pkgerrors.Errorf("thresholds must be within 0..100, got %d/%d", low, high)
	}
	if low >= high {
		return pkgerrors.Errorf("low threshold %d must be below high threshold %d", low, high)
	}
	return nil
}

// Validate checks the effective values for consistency.
func (f *File) Validate() error {
	if err := validateThresholds(f.LowThreshold(), f.HighThreshold()); err != nil {
		return err
	}

	v := f.Vigilance()
	if v.Low >= v.High {
		return pkgerrors.Errorf("vigilance band (%d, %d) is empty", v.Low, v.High)
	}
	if v.Grace < 0 {
		return pkgerrors.Errorf("vigilance grace must not be negative, got %s", v.Grace)
	}

	m := f.Monitor()
	if m.PollTimeout <= 0 {
		return pkgerrors.Errorf("poll timeout must be positive, got %s", m.PollTimeout)
	}

	c := f.Calibration()
	if c.Enabled {
		if c.Cycles < 1 {
			return pkgerrors.Errorf("calibration needs at least one cycle, got %d", c.Cycles)
		}
		if c.HardFloor >= c.DischargeTo || c.DischargeTo >= c.ChargeTo || c.ChargeTo > 100 {
			return pkgerrors.Errorf("calibration levels must satisfy hardFloor < dischargeTo < chargeTo <= 100, got %d/%d/%d",
				c.HardFloor, c.DischargeTo, c.ChargeTo)
		}
		if c.PollInterval <= 0 {
			return pkgerrors.Errorf("calibration poll interval must be positive, got %s", c.PollInterval)
		}
	}

	p := f.Plug()
	switch p.Driver {
	case DriverExec:
		if len(p.OnCommand) == 0 || len(p.OffCommand) == 0 || len(p.StatusCommand) == 0 {
			return pkgerrors.New("exec plug driver needs onCommand, offCommand and statusCommand")
		}
	case DriverRedis, DriverMemory:
	default:
		return pkgerrors.Errorf("unknown plug driver %q", p.Driver)
	}

	return nil
}

func (f *File) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(f.filepath))
	return ext == ".yaml" || ext == ".yml"
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// A missing file means all defaults. f.c must never be nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if len(bytes.TrimSpace(b)) == 0 {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	if f.isYAML() {
		err = yaml.Unmarshal(b, &conf)
	} else {
		err = json.Unmarshal(b, &conf)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	var (
		b   []byte
		err error
	)
	if f.isYAML() {
		b, err = yaml.Marshal(f.c)
	} else {
		b, err = json.MarshalIndent(f.c, "", "  ")
		b = append(b, '\n')
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config for file %s", f.filepath)
	}

	if err := os.MkdirAll(filepath.Dir(f.filepath), 0o755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create directory for %s", f.filepath)
	}

	// The file may hold push credentials.
	if err := os.WriteFile(f.filepath, b, 0o600); err != nil {
		return pkgerrors.Wrapf(err, "failed to write file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	v := f.Vigilance()
	c := f.Calibration()

	return logrus.Fields{
		"lowThreshold":       f.LowThreshold(),
		"highThreshold":      f.HighThreshold(),
		"vigilanceBand":      []int{v.Low, v.High},
		"vigilanceGrace":     v.Grace.String(),
		"plugDriver":         f.Plug().Driver,
		"calibration":        c.Enabled,
		"calibrationCycles":  c.Cycles,
		"allowNonRootAccess": f.AllowNonRootAccess(),
		"dryRun":             f.DryRun(),
	}
}
