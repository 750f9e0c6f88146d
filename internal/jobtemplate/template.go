// Package jobtemplate loads the yaml description of how merge jobs are
// submitted: experiment, release, worker script, and per project/stage
// resource requests.
package jobtemplate

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/yungbote/samerge/internal/pkg/errors"
)

const (
	DefaultNumJobs       = 10
	DefaultSubmitTimeout = 600 * time.Second
)

type Template struct {
	Experiment      string        `yaml:"experiment"`
	Role            string        `yaml:"role"`
	Script          string        `yaml:"script"`
	UPS             string        `yaml:"ups"`
	Release         string        `yaml:"release"`
	Qual            string        `yaml:"qual"`
	LocalReleaseTar string        `yaml:"local_release_tar"`
	SetupScript     string        `yaml:"setup_script"`
	OS              string        `yaml:"os"`
	JobsubOptions   string        `yaml:"jobsub_options"`
	Resource        string        `yaml:"resource"`
	Lines           string        `yaml:"lines"`
	NumJobs         int           `yaml:"num_jobs"`
	SubmitTimeout   time.Duration `yaml:"submit_timeout"`
	WorkDir         string        `yaml:"work_dir"`
	HelperFiles     []string      `yaml:"helper_files"`
	Projects        []Project     `yaml:"projects"`
}

type Project struct {
	Name     string  `yaml:"name"`
	Resource string  `yaml:"resource"`
	Lines    string  `yaml:"lines"`
	Stages   []Stage `yaml:"stages"`
}

type Stage struct {
	Name             string   `yaml:"name"`
	OutDir           string   `yaml:"outdir"`
	LogDir           string   `yaml:"logdir"`
	Site             string   `yaml:"site"`
	Blacklist        string   `yaml:"blacklist"`
	CPU              int      `yaml:"cpu"`
	Disk             string   `yaml:"disk"`
	Memory           int      `yaml:"memory"`
	Resource         string   `yaml:"resource"`
	Lines            string   `yaml:"lines"`
	Jobsub           string   `yaml:"jobsub"`
	Schema           string   `yaml:"schema"`
	ValidateOnWorker bool     `yaml:"validate_on_worker"`
	CopyToFTS        bool     `yaml:"copy_to_fts"`
	HelperFiles      []string `yaml:"helper_files"`
}

func Load(path string) (*Template, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read job template: %v", apperrors.ErrConfig, err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("%w: parse job template: %v", apperrors.ErrConfig, err)
	}
	if strings.TrimSpace(t.Script) == "" {
		return nil, fmt.Errorf("%w: job template has no script", apperrors.ErrConfig)
	}
	if t.Experiment == "" {
		t.Experiment = "uboone"
	}
	if t.Role == "" {
		t.Role = "Analysis"
	}
	if t.NumJobs <= 0 {
		t.NumJobs = DefaultNumJobs
	}
	if t.SubmitTimeout <= 0 {
		t.SubmitTimeout = DefaultSubmitTimeout
	}
	if t.WorkDir == "" {
		t.WorkDir = os.TempDir()
	}
	return &t, nil
}

// Selection is the template narrowed to one project and stage.
type Selection struct {
	*Template
	Project Project
	Stage   Stage
}

// Select resolves the named project and stage. An empty name picks the only
// entry when there is exactly one.
func (t *Template) Select(project, stage string) (*Selection, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: no job template configured", apperrors.ErrConfig)
	}
	var p *Project
	for i := range t.Projects {
		if t.Projects[i].Name == project || (project == "" && len(t.Projects) == 1) {
			p = &t.Projects[i]
			break
		}
	}
	if p == nil {
		return nil, fmt.Errorf("%w: project %q not found in job template", apperrors.ErrConfig, project)
	}
	for i := range p.Stages {
		if p.Stages[i].Name == stage || (stage == "" && len(p.Stages) == 1) {
			return &Selection{Template: t, Project: *p, Stage: p.Stages[i]}, nil
		}
	}
	return nil, fmt.Errorf("%w: stage %q not found in project %q", apperrors.ErrConfig, stage, p.Name)
}

// Helpers lists the files shipped in every job archive.
func (s *Selection) Helpers() []string {
	out := append([]string{}, s.HelperFiles...)
	return append(out, s.Stage.HelperFiles...)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// SchedulerOptions are the jobsub_submit options preceding the worker script.
func (s *Selection) SchedulerOptions() []string {
	opts := []string{
		"--group=" + s.Experiment,
		"-N", "1",
		"--role=" + s.Role,
	}
	if r := firstNonEmpty(s.Stage.Resource, s.Project.Resource, s.Resource); r != "" {
		opts = append(opts, "--resource-provides=usage_model="+r)
	}
	if l := firstNonEmpty(s.Stage.Lines, s.Project.Lines, s.Lines); l != "" {
		opts = append(opts, "--lines="+l)
	}
	if s.Stage.Site != "" {
		opts = append(opts, "--site="+s.Stage.Site)
	}
	if s.Stage.Blacklist != "" {
		opts = append(opts, "--blacklist="+s.Stage.Blacklist)
	}
	if s.Stage.CPU != 0 {
		opts = append(opts, "--cpu="+strconv.Itoa(s.Stage.CPU))
	}
	if s.Stage.Disk != "" {
		opts = append(opts, "--disk="+s.Stage.Disk)
	}
	if s.Stage.Memory != 0 {
		opts = append(opts, "--memory="+strconv.Itoa(s.Stage.Memory))
	}
	if s.OS != "" {
		opts = append(opts, "--singularity-image=/cvmfs/singularity.opensciencegrid.org/fermilab/fnal-wn-"+strings.ToLower(s.OS)+":latest")
	}
	opts = append(opts, strings.Fields(s.Stage.Jobsub)...)
	return append(opts, strings.Fields(s.JobsubOptions)...)
}

// ScriptArgs are the worker script arguments for one merge job.
func (s *Selection) ScriptArgs(configName, defname, project string) []string {
	args := []string{"--group", s.Experiment}
	if configName != "" {
		args = append(args, "-c", filepath.Base(configName))
	}
	args = append(args, "--nfile", "1000000")
	if s.UPS != "" {
		args = append(args, "--ups", s.UPS)
	}
	if s.Release != "" {
		args = append(args, "-r", s.Release)
	}
	if s.Qual != "" {
		args = append(args, "-b", s.Qual)
	}
	if s.LocalReleaseTar != "" {
		args = append(args, "--localtar", s.LocalReleaseTar)
	}
	args = append(args, "--outdir", s.Stage.OutDir, "--logdir", s.Stage.LogDir)
	if s.Stage.Schema != "" {
		args = append(args, "--sam_schema", s.Stage.Schema)
	}
	if s.SetupScript != "" {
		args = append(args, "--init", s.SetupScript)
	}
	if s.Stage.ValidateOnWorker {
		args = append(args, "--validate", "--declare")
	}
	if s.Stage.CopyToFTS {
		args = append(args, "--copy")
	}
	return append(args,
		"--sam_station", s.Experiment,
		"--sam_group", s.Experiment,
		"--sam_defname", defname,
		"--sam_project", project,
		"--sam_start",
	)
}
