package merge

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/yungbote/samerge/internal/pkg/errors"
)

const (
	DefaultMaxSize       int64 = 2_500_000_000
	DefaultMinSize       int64 = 1_000_000_000
	DefaultMaxAge              = 72 * time.Hour
	DefaultMaxProjects         = 500
	DefaultMaxGroups           = 100
	DefaultQueryLimit          = 1000
	DefaultFileLimit           = 10000
	DefaultProjectGrace        = 10 * time.Minute
	DefaultLocateTimeout       = 3 * 24 * time.Hour
	// OutputNameLimit is the longest output file name the batch wrapper
	// accepts.
	OutputNameLimit = 190
)

// Phases selects which parts of a run execute. The zero value runs all.
type Phases struct {
	Discover bool // phase 1: discovery and planning
	Submit   bool // phase 2: submission and monitoring
	Cleanup  bool // phase 3: cleanup of located and finished items
}

func (p Phases) Normalize() Phases {
	if !p.Discover && !p.Submit && !p.Cleanup {
		return Phases{Discover: true, Submit: true, Cleanup: true}
	}
	return p
}

type Config struct {
	DefName     string
	MaxSize     int64
	MinSize     int64
	MaxCount    int
	MaxAge      time.Duration
	MaxProjects int
	MaxGroups   int
	QueryLimit  int
	FileLimit   int
	Phases      Phases
	// NoBatch treats an ended catalog project as final immediately.
	NoBatch bool
	// Project and Stage select the job template entry used for submission.
	Project string
	Stage   string

	ProjectGrace  time.Duration
	LocateTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxSize:       DefaultMaxSize,
		MinSize:       DefaultMinSize,
		MaxAge:        DefaultMaxAge,
		MaxProjects:   DefaultMaxProjects,
		MaxGroups:     DefaultMaxGroups,
		QueryLimit:    DefaultQueryLimit,
		FileLimit:     DefaultFileLimit,
		ProjectGrace:  DefaultProjectGrace,
		LocateTimeout: DefaultLocateTimeout,
	}
}

func (c Config) Validate() error {
	switch {
	case c.MaxSize <= 0:
		return fmt.Errorf("%w: max size must be positive", apperrors.ErrInvalidArgument)
	case c.MinSize < 0 || c.MinSize > c.MaxSize:
		return fmt.Errorf("%w: min size must be between 0 and max size", apperrors.ErrInvalidArgument)
	case c.MaxCount < 0:
		return fmt.Errorf("%w: max count must not be negative", apperrors.ErrInvalidArgument)
	case c.MaxAge < 0:
		return fmt.Errorf("%w: max age must not be negative", apperrors.ErrInvalidArgument)
	}
	return nil
}

// projectGrace is how long an ended project may go without its output being
// declared before the item is reset.
func (c Config) projectGrace() time.Duration {
	if c.NoBatch {
		return 0
	}
	return c.ProjectGrace
}

// ParseAge accepts plain seconds or a number with an h or d suffix, as well as
// any Go duration string.
func ParseAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("%w: empty age", apperrors.ErrInvalidArgument)
	}
	mult := time.Second
	num := s
	switch {
	case strings.HasSuffix(s, "d"):
		mult, num = 24*time.Hour, strings.TrimSuffix(s, "d")
	case strings.HasSuffix(s, "h"):
		mult, num = time.Hour, strings.TrimSuffix(s, "h")
	}
	if f, err := strconv.ParseFloat(num, 64); err == nil {
		if f < 0 {
			return 0, fmt.Errorf("%w: negative age %q", apperrors.ErrInvalidArgument, s)
		}
		return time.Duration(f * float64(mult)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: bad age %q", apperrors.ErrInvalidArgument, s)
	}
	return d, nil
}
