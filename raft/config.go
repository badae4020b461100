package raft

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// AckPolicy 决定 Leader 如何处理收到的 AppendAck。
type AckPolicy string

const (
	// AckTally 在响应窗口内把确认计入唯一一个未决提议，窗口之后到达的确认被忽略。
	AckTally AckPolicy = "tally"
	// AckRepropose 把每个携带数据的确认变成一条新的提议，投递到 Leader 自己的邮箱。
	AckRepropose AckPolicy = "repropose"
)

// Config 汇总节点主循环使用的全部时间参数和策略。
type Config struct {
	// TickInterval 是两次 tick 之间固定的休眠时长，也是节点让出处理器的调度边界。
	TickInterval time.Duration `yaml:"tick_interval"`
	// ResponseWindow 是选举和复制在统计回复前阻塞等待的时长，模拟网络往返。
	// 它必须大于 TickInterval，否则对端来不及在一个 tick 内处理请求并回复。
	ResponseWindow time.Duration `yaml:"response_window"`
	// 选举超时 = ElectionTimeoutBase + rand[0, ElectionJitterSteps) * ElectionJitterStep
	ElectionTimeoutBase time.Duration `yaml:"election_timeout_base"`
	ElectionJitterStep  time.Duration `yaml:"election_jitter_step"`
	ElectionJitterSteps int           `yaml:"election_jitter_steps"`

	AckPolicy AckPolicy `yaml:"ack_policy"`
}

// DefaultConfig 返回默认配置：50ms tick、200ms 响应窗口、300ms 加 0~90ms 抖动的选举超时。
func DefaultConfig() Config {
	return Config{
		TickInterval:        50 * time.Millisecond,
		ResponseWindow:      200 * time.Millisecond,
		ElectionTimeoutBase: 300 * time.Millisecond,
		ElectionJitterStep:  10 * time.Millisecond,
		ElectionJitterSteps: 10,
		AckPolicy:           AckTally,
	}
}

// Validate 检查配置是否可用。
func (c Config) Validate() error {
	switch {
	case c.TickInterval <= 0:
		return fmt.Errorf("%w: tick interval must be positive, got %s", ErrInvalidConfig, c.TickInterval)
	case c.ResponseWindow <= c.TickInterval:
		return fmt.Errorf("%w: response window %s must be longer than tick interval %s", ErrInvalidConfig, c.ResponseWindow, c.TickInterval)
	case c.ElectionTimeoutBase <= 0:
		return fmt.Errorf("%w: election timeout base must be positive, got %s", ErrInvalidConfig, c.ElectionTimeoutBase)
	case c.ElectionJitterStep < 0 || c.ElectionJitterSteps < 0:
		return fmt.Errorf("%w: election jitter must not be negative", ErrInvalidConfig)
	}
	if c.AckPolicy != AckTally && c.AckPolicy != AckRepropose {
		return fmt.Errorf("%w: unknown ack policy %q", ErrInvalidConfig, c.AckPolicy)
	}
	return nil
}

// drawElectionTimeout 抽取一个随机化的选举超时。
func (c Config) drawElectionTimeout() time.Duration {
	if c.ElectionJitterSteps <= 0 {
		return c.ElectionTimeoutBase
	}
	return c.ElectionTimeoutBase + time.Duration(rand.Intn(c.ElectionJitterSteps))*c.ElectionJitterStep
}

// LoadConfig 从 YAML 文件读取配置，文件中缺省的字段保留默认值。
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// BindFlags 把配置字段注册为命令行参数，参数默认值取自 cfg 当前的值。
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "Fixed sleep quantum between two loop ticks")
	fs.DurationVar(&cfg.ResponseWindow, "response-window", cfg.ResponseWindow, "Time to wait for votes/acks before tallying")
	fs.DurationVar(&cfg.ElectionTimeoutBase, "election-timeout", cfg.ElectionTimeoutBase, "Election timeout baseline")
	fs.DurationVar(&cfg.ElectionJitterStep, "election-jitter-step", cfg.ElectionJitterStep, "Election timeout jitter granularity")
	fs.IntVar(&cfg.ElectionJitterSteps, "election-jitter-steps", cfg.ElectionJitterSteps, "Number of jitter steps added to the election timeout")
	fs.StringVar((*string)(&cfg.AckPolicy), "ack-policy", string(cfg.AckPolicy), "Leader ack handling: tally or repropose")
}

// flagSetters 把参数名映射到对应字段的拷贝函数，用于合并配置文件和命令行。
var flagSetters = map[string]func(dst, src *Config){
	"tick":                  func(dst, src *Config) { dst.TickInterval = src.TickInterval },
	"response-window":       func(dst, src *Config) { dst.ResponseWindow = src.ResponseWindow },
	"election-timeout":      func(dst, src *Config) { dst.ElectionTimeoutBase = src.ElectionTimeoutBase },
	"election-jitter-step":  func(dst, src *Config) { dst.ElectionJitterStep = src.ElectionJitterStep },
	"election-jitter-steps": func(dst, src *Config) { dst.ElectionJitterSteps = src.ElectionJitterSteps },
	"ack-policy":            func(dst, src *Config) { dst.AckPolicy = src.AckPolicy },
}

// ApplyFile 用 YAML 文件中的值替换 cfg，但命令行上显式设置过的参数优先。
func ApplyFile(path string, fs *pflag.FlagSet, cfg *Config) error {
	fileCfg, err := LoadConfig(path)
	if err != nil {
		return err
	}
	fromFlags := *cfg
	*cfg = fileCfg
	fs.Visit(func(f *pflag.Flag) {
		if apply, ok := flagSetters[f.Name]; ok {
			apply(cfg, &fromFlags)
		}
	})
	return cfg.Validate()
}
