package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// WorkflowConfig tunes the collaboration workflows. It is reloaded from
// disk without a restart so operators can tighten invitation or bidding
// windows on a running instance.
type WorkflowConfig struct {
	InvitationTTLDays  int `mapstructure:"invitationTtlDays"`
	MaxTeamSize        int `mapstructure:"maxTeamSize"`
	BiddingWindowDays  int `mapstructure:"biddingWindowDays"`
	MaxBidsPerRequest  int `mapstructure:"maxBidsPerRequest"`
	MaxImagesPerEntry  int `mapstructure:"maxImagesPerEntry"`
	MaxUploadSizeBytes int `mapstructure:"maxUploadSizeBytes"`
}

func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		InvitationTTLDays:  7,
		MaxTeamSize:        50,
		BiddingWindowDays:  14,
		MaxBidsPerRequest:  100,
		MaxImagesPerEntry:  10,
		MaxUploadSizeBytes: 25 << 20,
	}
}

func (c WorkflowConfig) InvitationTTL() time.Duration {
	return time.Duration(c.InvitationTTLDays) * 24 * time.Hour
}

func (c WorkflowConfig) BiddingWindow() time.Duration {
	return time.Duration(c.BiddingWindowDays) * 24 * time.Hour
}

type WorkflowConfigHolder struct {
	current atomic.Value // holds WorkflowConfig
}

func NewWorkflowConfigHolder() (*WorkflowConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("workflow")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/timberline/config") // Volume-mounted config
	v.AddConfigPath("/etc/timberline")            // System config
	v.AddConfigPath(".")                          // Current directory (dev mode)

	v.SetEnvPrefix("TIMBERLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultWorkflowConfig()
	v.SetDefault("workflow.invitationTtlDays", defaults.InvitationTTLDays)
	v.SetDefault("workflow.maxTeamSize", defaults.MaxTeamSize)
	v.SetDefault("workflow.biddingWindowDays", defaults.BiddingWindowDays)
	v.SetDefault("workflow.maxBidsPerRequest", defaults.MaxBidsPerRequest)
	v.SetDefault("workflow.maxImagesPerEntry", defaults.MaxImagesPerEntry)
	v.SetDefault("workflow.maxUploadSizeBytes", defaults.MaxUploadSizeBytes)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg WorkflowConfig
	if err := v.UnmarshalKey("workflow", &cfg); err != nil {
		return nil, err
	}
	if err := validateWorkflowConfig(cfg); err != nil {
		return nil, err
	}

	holder := &WorkflowConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated WorkflowConfig
		if err := v.UnmarshalKey("workflow", &updated); err != nil {
			log.Printf("[workflow-config] reload failed: %v", err)
			return
		}
		if err := validateWorkflowConfig(updated); err != nil {
			log.Printf("[workflow-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[workflow-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticWorkflowConfigHolder returns a holder pinned to cfg. It never
// reloads; tests use it to pin workflow knobs.
func NewStaticWorkflowConfigHolder(cfg WorkflowConfig) *WorkflowConfigHolder {
	holder := &WorkflowConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *WorkflowConfigHolder) Current() WorkflowConfig {
	cfg, ok := h.current.Load().(WorkflowConfig)
	if !ok {
		return DefaultWorkflowConfig()
	}
	return cfg
}

func validateWorkflowConfig(cfg WorkflowConfig) error {
	if cfg.InvitationTTLDays <= 0 {
		return errors.New("invitationTtlDays must be positive")
	}
	if cfg.MaxTeamSize <= 0 {
		return errors.New("maxTeamSize must be positive")
	}
	if cfg.BiddingWindowDays <= 0 {
		return errors.New("biddingWindowDays must be positive")
	}
	if cfg.MaxBidsPerRequest <= 0 {
		return errors.New("maxBidsPerRequest must be positive")
	}
	if cfg.MaxImagesPerEntry <= 0 {
		return errors.New("maxImagesPerEntry must be positive")
	}
	if cfg.MaxUploadSizeBytes <= 0 {
		return errors.New("maxUploadSizeBytes must be positive")
	}
	return nil
}
