package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/yungbote/samerge/internal/merge"
	apperrors "github.com/yungbote/samerge/internal/pkg/errors"
	"github.com/yungbote/samerge/internal/platform/samweb"
)

// Configuration keys. Flags, SAMERGE_* environment variables and the yaml
// config file all resolve through these.
const (
	KeyLogMode     = "log_mode"
	KeyDatabase    = "database"
	KeyDefName     = "defname"
	KeyMaxSize     = "max_size"
	KeyMinSize     = "min_size"
	KeyMaxCount    = "max_count"
	KeyMaxAge      = "max_age"
	KeyMaxProjects = "max_projects"
	KeyMaxGroups   = "max_groups"
	KeyQueryLimit  = "query_limit"
	KeyFileLimit   = "file_limit"
	KeyPhase1      = "phase1"
	KeyPhase2      = "phase2"
	KeyPhase3      = "phase3"
	KeyNoBatch     = "nobatch"
	KeyJobTemplate = "job_template"
	KeyProject     = "project"
	KeyStage       = "stage"
	KeyMetricsFile = "metrics_file"

	KeySAMURL        = "samweb.url"
	KeySAMExperiment = "samweb.experiment"
	KeySAMUser       = "samweb.user"
	KeySAMTokenFile  = "samweb.token_file"
	KeySAMCert       = "samweb.cert"
	KeySAMKey        = "samweb.key"
	KeySAMTimeout    = "samweb.timeout"
	KeyJobsubBinary  = "jobsub.binary"
)

type Config struct {
	LogMode      string
	Database     string
	JobTemplate  string
	MetricsFile  string
	JobsubBinary string
	Merge        merge.Config
	SAM          samweb.Config
}

// NewViper returns a viper instance with defaults and environment lookup
// configured. Callers bind flags and read the config file on top.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("samerge")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	d := merge.DefaultConfig()
	v.SetDefault(KeyLogMode, "development")
	v.SetDefault(KeyDatabase, "merge.db")
	v.SetDefault(KeyMaxSize, float64(d.MaxSize))
	v.SetDefault(KeyMinSize, float64(d.MinSize))
	v.SetDefault(KeyMaxCount, 0)
	v.SetDefault(KeyMaxAge, "72h")
	v.SetDefault(KeyMaxProjects, d.MaxProjects)
	v.SetDefault(KeyMaxGroups, d.MaxGroups)
	v.SetDefault(KeyQueryLimit, d.QueryLimit)
	v.SetDefault(KeyFileLimit, d.FileLimit)
	v.SetDefault(KeySAMURL, "https://samweb.fnal.gov:8483/sam/uboone/api")
	v.SetDefault(KeySAMExperiment, "uboone")
	v.SetDefault(KeySAMTimeout, 60*time.Second)
	v.SetDefault(KeyJobsubBinary, "jobsub_submit")
	return v
}

// ReadConfigFile merges the yaml file at path, if any, into v.
func ReadConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: read config %s: %v", apperrors.ErrConfig, path, err)
	}
	return nil
}

func LoadConfig(v *viper.Viper) (Config, error) {
	maxAge, err := merge.ParseAge(v.GetString(KeyMaxAge))
	if err != nil {
		return Config{}, err
	}
	mc := merge.DefaultConfig()
	mc.DefName = v.GetString(KeyDefName)
	mc.MaxSize = int64(v.GetFloat64(KeyMaxSize))
	mc.MinSize = int64(v.GetFloat64(KeyMinSize))
	mc.MaxCount = v.GetInt(KeyMaxCount)
	mc.MaxAge = maxAge
	mc.MaxProjects = v.GetInt(KeyMaxProjects)
	mc.MaxGroups = v.GetInt(KeyMaxGroups)
	mc.QueryLimit = v.GetInt(KeyQueryLimit)
	mc.FileLimit = v.GetInt(KeyFileLimit)
	mc.Phases = merge.Phases{
		Discover: v.GetBool(KeyPhase1),
		Submit:   v.GetBool(KeyPhase2),
		Cleanup:  v.GetBool(KeyPhase3),
	}
	mc.NoBatch = v.GetBool(KeyNoBatch)
	mc.Project = v.GetString(KeyProject)
	mc.Stage = v.GetString(KeyStage)
	if err := mc.Validate(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		LogMode:      v.GetString(KeyLogMode),
		Database:     v.GetString(KeyDatabase),
		JobTemplate:  v.GetString(KeyJobTemplate),
		MetricsFile:  v.GetString(KeyMetricsFile),
		JobsubBinary: v.GetString(KeyJobsubBinary),
		Merge:        mc,
		SAM: samweb.Config{
			BaseURL:    v.GetString(KeySAMURL),
			Experiment: v.GetString(KeySAMExperiment),
			User:       v.GetString(KeySAMUser),
			TokenFile:  v.GetString(KeySAMTokenFile),
			CertFile:   v.GetString(KeySAMCert),
			KeyFile:    v.GetString(KeySAMKey),
			Timeout:    v.GetDuration(KeySAMTimeout),
		},
	}
	if strings.TrimSpace(cfg.Database) == "" {
		return Config{}, fmt.Errorf("%w: database path required", apperrors.ErrConfig)
	}
	return cfg, nil
}
