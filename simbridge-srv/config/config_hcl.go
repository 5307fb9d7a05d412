package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"
)

// hclFile mirrors Config for HCL decoding. Pointer fields distinguish
// "absent" from zero values so file settings only override what they name.
type hclFile struct {
	ListenAddress            *string `hcl:"listen-address,optional"`
	AdminAddress             *string `hcl:"admin-address,optional"`
	TimeoutSeconds           *int    `hcl:"timeout-seconds,optional"`
	MaxConcurrentConnections *int    `hcl:"max-concurrent-connections,optional"`
	SimulationDir            *string `hcl:"simulation-dir,optional"`
	IncrementalCapture       *bool   `hcl:"incremental-capture,optional"`
	WatchSources             *bool   `hcl:"watch-sources,optional"`

	Upstream *hclUpstream `hcl:"upstream,block"`
	Journal  *hclJournal  `hcl:"journal,block"`
	Admin    *hclAdmin    `hcl:"admin,block"`
	Metrics  *hclMetrics  `hcl:"metrics,block"`
}

type hclUpstream struct {
	Socks5Address *string `hcl:"socks5-address,optional"`
	Username      *string `hcl:"username,optional"`
	Password      *string `hcl:"password,optional"`
}

type hclJournal struct {
	Backend    *string `hcl:"backend,optional"`
	Path       *string `hcl:"path,optional"`
	DSN        *string `hcl:"dsn,optional"`
	BufferSize *int    `hcl:"buffer-size,optional"`
}

type hclAdmin struct {
	AuthEnabled *bool   `hcl:"auth-enabled,optional"`
	JWTSecret   *string `hcl:"jwt-secret,optional"`
	Username    *string `hcl:"username,optional"`
	Password    *string `hcl:"password,optional"`
}

type hclMetrics struct {
	Enabled   *bool   `hcl:"enabled,optional"`
	Namespace *string `hcl:"namespace,optional"`
}

// envEvalContext exposes the process environment to HCL expressions as
// env.NAME, so secrets stay out of checked-in config files.
func envEvalContext() *hcl.EvalContext {
	vars := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			continue
		}
		vars[parts[0]] = cty.StringVal(parts[1])
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
	}
}

func loadHCL(configPath string, cfg *Config) error {
	var file hclFile
	if err := hclsimple.DecodeFile(configPath, envEvalContext(), &file); err != nil {
		return fmt.Errorf("failed to decode HCL config: %w", err)
	}

	setString(&cfg.ListenAddress, file.ListenAddress)
	setString(&cfg.AdminAddress, file.AdminAddress)
	setInt(&cfg.TimeoutSeconds, file.TimeoutSeconds)
	setInt(&cfg.MaxConcurrentConnections, file.MaxConcurrentConnections)
	setString(&cfg.SimulationDir, file.SimulationDir)
	setBool(&cfg.IncrementalCapture, file.IncrementalCapture)
	setBool(&cfg.WatchSources, file.WatchSources)

	if file.Upstream != nil {
		setString(&cfg.Upstream.Socks5Address, file.Upstream.Socks5Address)
		setString(&cfg.Upstream.Username, file.Upstream.Username)
		setString(&cfg.Upstream.Password, file.Upstream.Password)
	}
	if file.Journal != nil {
		if file.Journal.Backend != nil {
			cfg.Journal.Backend = JournalBackend(*file.Journal.Backend)
		}
		setString(&cfg.Journal.Path, file.Journal.Path)
		setString(&cfg.Journal.DSN, file.Journal.DSN)
		setInt(&cfg.Journal.BufferSize, file.Journal.BufferSize)
	}
	if file.Admin != nil {
		setBool(&cfg.Admin.AuthEnabled, file.Admin.AuthEnabled)
		setString(&cfg.Admin.JWTSecret, file.Admin.JWTSecret)
		setString(&cfg.Admin.Username, file.Admin.Username)
		setString(&cfg.Admin.Password, file.Admin.Password)
	}
	if file.Metrics != nil {
		setBool(&cfg.Metrics.Enabled, file.Metrics.Enabled)
		setString(&cfg.Metrics.Namespace, file.Metrics.Namespace)
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
