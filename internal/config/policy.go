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

// PolicyConfig holds the tunable pipeline parameters. Everything here has a
// default matching production behavior; operators override via policy.yml.
type PolicyConfig struct {
	Scoring    ScoringPolicy    `mapstructure:"scoring"`
	Schedule   SchedulePolicy   `mapstructure:"schedule"`
	Snapshot   SnapshotPolicy   `mapstructure:"snapshot"`
	Fetch      FetchPolicy      `mapstructure:"fetch"`
	Discovery  DiscoveryPolicy  `mapstructure:"discovery"`
	Competitor CompetitorPolicy `mapstructure:"competitor"`
	Sourcing   SourcingPolicy   `mapstructure:"sourcing"`
}

type ScoringPolicy struct {
	WeeklyDemandWeight   float64 `mapstructure:"weeklyDemandWeight"`
	LifetimeOrdersWeight float64 `mapstructure:"lifetimeOrdersWeight"`
	RatingWeight         float64 `mapstructure:"ratingWeight"`
	SupplyPressureWeight float64 `mapstructure:"supplyPressureWeight"`
	SupplyPressureFBO    float64 `mapstructure:"supplyPressureFbo"`
	SupplyPressureFBS    float64 `mapstructure:"supplyPressureFbs"`
}

type SchedulePolicy struct {
	SuccessInterval time.Duration `mapstructure:"successInterval"`
	SuccessJitter   time.Duration `mapstructure:"successJitter"`
	FailureDelay    time.Duration `mapstructure:"failureDelay"`
	BatchLimit      int           `mapstructure:"batchLimit"`
}

type SnapshotPolicy struct {
	MinGap time.Duration `mapstructure:"minGap"`
}

type FetchPolicy struct {
	BatchSize  int           `mapstructure:"batchSize"`
	BatchDelay time.Duration `mapstructure:"batchDelay"`
}

type DiscoveryPolicy struct {
	CandidateCap int `mapstructure:"candidateCap"`
	TopN         int `mapstructure:"topN"`
}

type CompetitorPolicy struct {
	DefaultDropThresholdPct float64 `mapstructure:"defaultDropThresholdPct"`
}

type SourcingPolicy struct {
	RelevanceCutoff   float64 `mapstructure:"relevanceCutoff"`
	CustomsRate       float64 `mapstructure:"customsRate"`
	VATRate           float64 `mapstructure:"vatRate"`
	ROIWeight         float64 `mapstructure:"roiWeight"`
	MatchWeight       float64 `mapstructure:"matchWeight"`
	ShippingWeight    float64 `mapstructure:"shippingWeight"`
	RatingWeight      float64 `mapstructure:"ratingWeight"`
	DefaultWeightKg   float64 `mapstructure:"defaultWeightKg"`
	TargetMarginFloor float64 `mapstructure:"targetMarginFloor"`
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Scoring: ScoringPolicy{
			WeeklyDemandWeight:   0.55,
			LifetimeOrdersWeight: 0.25,
			RatingWeight:         0.10,
			SupplyPressureWeight: 0.10,
			SupplyPressureFBO:    1.0,
			SupplyPressureFBS:    0.5,
		},
		Schedule: SchedulePolicy{
			SuccessInterval: 24 * time.Hour,
			SuccessJitter:   30 * time.Minute,
			FailureDelay:    6 * time.Hour,
			BatchLimit:      50,
		},
		Snapshot: SnapshotPolicy{
			MinGap: 5 * time.Minute,
		},
		Fetch: FetchPolicy{
			BatchSize:  5,
			BatchDelay: 500 * time.Millisecond,
		},
		Discovery: DiscoveryPolicy{
			CandidateCap: 200,
			TopN:         20,
		},
		Competitor: CompetitorPolicy{
			DefaultDropThresholdPct: 10,
		},
		Sourcing: SourcingPolicy{
			RelevanceCutoff:   0.5,
			CustomsRate:       0.10,
			VATRate:           0.12,
			ROIWeight:         0.40,
			MatchWeight:       0.25,
			ShippingWeight:    0.20,
			RatingWeight:      0.15,
			DefaultWeightKg:   0.5,
			TargetMarginFloor: 0,
		},
	}
}

// PolicyHolder exposes the current policy with lock-free reads and hot reload.
type PolicyHolder struct {
	current atomic.Value // holds PolicyConfig
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/marketpulse/config") // Volume-mounted config
	v.AddConfigPath("/etc/marketpulse")            // System config
	v.AddConfigPath(".")                           // Current directory (dev mode)

	v.SetEnvPrefix("MARKETPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicyConfig()
	setPolicyDefaults(v, defaults)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// no file on disk, run on defaults
	}

	var cfg PolicyConfig
	if err := v.UnmarshalKey("policy", &cfg); err != nil {
		return nil, err
	}
	if err := validatePolicyConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PolicyConfig
		if err := v.UnmarshalKey("policy", &updated); err != nil {
			log.Printf("[policy-config] reload failed: %v", err)
			return
		}
		if err := validatePolicyConfig(updated); err != nil {
			log.Printf("[policy-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[policy-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPolicyHolder wraps a fixed policy. Used by tests.
func NewStaticPolicyHolder(cfg PolicyConfig) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PolicyHolder) Get() PolicyConfig {
	return h.current.Load().(PolicyConfig)
}

func setPolicyDefaults(v *viper.Viper, d PolicyConfig) {
	v.SetDefault("policy.scoring.weeklyDemandWeight", d.Scoring.WeeklyDemandWeight)
	v.SetDefault("policy.scoring.lifetimeOrdersWeight", d.Scoring.LifetimeOrdersWeight)
	v.SetDefault("policy.scoring.ratingWeight", d.Scoring.RatingWeight)
	v.SetDefault("policy.scoring.supplyPressureWeight", d.Scoring.SupplyPressureWeight)
	v.SetDefault("policy.scoring.supplyPressureFbo", d.Scoring.SupplyPressureFBO)
	v.SetDefault("policy.scoring.supplyPressureFbs", d.Scoring.SupplyPressureFBS)
	v.SetDefault("policy.schedule.successInterval", d.Schedule.SuccessInterval)
	v.SetDefault("policy.schedule.successJitter", d.Schedule.SuccessJitter)
	v.SetDefault("policy.schedule.failureDelay", d.Schedule.FailureDelay)
	v.SetDefault("policy.schedule.batchLimit", d.Schedule.BatchLimit)
	v.SetDefault("policy.snapshot.minGap", d.Snapshot.MinGap)
	v.SetDefault("policy.fetch.batchSize", d.Fetch.BatchSize)
	v.SetDefault("policy.fetch.batchDelay", d.Fetch.BatchDelay)
	v.SetDefault("policy.discovery.candidateCap", d.Discovery.CandidateCap)
	v.SetDefault("policy.discovery.topN", d.Discovery.TopN)
	v.SetDefault("policy.competitor.defaultDropThresholdPct", d.Competitor.DefaultDropThresholdPct)
	v.SetDefault("policy.sourcing.relevanceCutoff", d.Sourcing.RelevanceCutoff)
	v.SetDefault("policy.sourcing.customsRate", d.Sourcing.CustomsRate)
	v.SetDefault("policy.sourcing.vatRate", d.Sourcing.VATRate)
	v.SetDefault("policy.sourcing.roiWeight", d.Sourcing.ROIWeight)
	v.SetDefault("policy.sourcing.matchWeight", d.Sourcing.MatchWeight)
	v.SetDefault("policy.sourcing.shippingWeight", d.Sourcing.ShippingWeight)
	v.SetDefault("policy.sourcing.ratingWeight", d.Sourcing.RatingWeight)
	v.SetDefault("policy.sourcing.defaultWeightKg", d.Sourcing.DefaultWeightKg)
	v.SetDefault("policy.sourcing.targetMarginFloor", d.Sourcing.TargetMarginFloor)
}

func validatePolicyConfig(cfg PolicyConfig) error {
	if cfg.Schedule.BatchLimit <= 0 {
		return errors.New("policy.schedule.batchLimit must be positive")
	}
	if cfg.Fetch.BatchSize <= 0 {
		return errors.New("policy.fetch.batchSize must be positive")
	}
	if cfg.Discovery.TopN <= 0 || cfg.Discovery.CandidateCap <= 0 {
		return errors.New("policy.discovery.topN and candidateCap must be positive")
	}
	if cfg.Discovery.TopN > cfg.Discovery.CandidateCap {
		return errors.New("policy.discovery.topN cannot exceed candidateCap")
	}
	if cfg.Competitor.DefaultDropThresholdPct <= 0 {
		return errors.New("policy.competitor.defaultDropThresholdPct must be positive")
	}
	if cfg.Sourcing.RelevanceCutoff < 0 || cfg.Sourcing.RelevanceCutoff > 1 {
		return errors.New("policy.sourcing.relevanceCutoff must be within [0,1]")
	}
	return nil
}
