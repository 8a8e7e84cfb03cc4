package config

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/mightora/playwright-powerplatform/internal/logger"
	"github.com/mightora/playwright-powerplatform/internal/version"
)

// RunConfiguration is the immutable set of inputs for one task run, resolved
// once at startup. Precedence: environment variables over YAML file over
// flags over defaults, matching how pipeline variables override task inputs.
type RunConfiguration struct {
	TestSource string `yaml:"testSource"`
	Browser    string `yaml:"browser"`
	TraceMode  string `yaml:"trace"`
	OutputPath string `yaml:"outputPath"`
	WorkDir    string `yaml:"workDir"`
	LogLevel   string `yaml:"logLevel"`

	AppURL   string `yaml:"appUrl"`
	AppName  string `yaml:"appName"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	RepoURL string `yaml:"repoUrl"`
	RepoRef string `yaml:"repoRef"`

	TenantID         string `yaml:"tenantId"`
	DataverseURL     string `yaml:"dataverseUrl"`
	ClientID         string `yaml:"clientId"`
	ClientSecret     string `yaml:"clientSecret"`
	RoleName         string `yaml:"role"`
	TeamName         string `yaml:"team"`
	BusinessUnitName string `yaml:"businessUnit"`
}

var validBrowsers = map[string]bool{
	"chromium": true,
	"firefox":  true,
	"webkit":   true,
}

var validTraceModes = map[string]bool{
	"off":               true,
	"on":                true,
	"retain-on-failure": true,
	"on-first-retry":    true,
}

func New() *RunConfiguration {
	return &RunConfiguration{
		Browser:    "chromium",
		TraceMode:  "off",
		OutputPath: "test-output",
		WorkDir:    ".",
		LogLevel:   "info",
	}
}

func (c *RunConfiguration) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("playwright-powerplatform", flag.ContinueOnError)

	fs.StringVar(&c.TestSource, "test-source", c.TestSource, "Directory containing the Playwright spec files to stage")
	fs.StringVar(&c.Browser, "browser", c.Browser, "Target browser (chromium, firefox, webkit)")
	fs.StringVar(&c.TraceMode, "trace", c.TraceMode, "Trace capture mode (off, on, retain-on-failure, on-first-retry)")
	fs.StringVar(&c.OutputPath, "output-path", c.OutputPath, "Directory receiving test-results and playwright-report")
	fs.StringVar(&c.WorkDir, "work-dir", c.WorkDir, "Working directory for the framework checkout")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&c.AppURL, "app-url", c.AppURL, "URL of the Power Platform application under test")
	fs.StringVar(&c.AppName, "app-name", c.AppName, "Display name of the application under test")
	fs.StringVar(&c.Username, "username", c.Username, "Test user sign-in name")
	fs.StringVar(&c.Password, "password", c.Password, "Test user password")
	fs.StringVar(&c.RepoURL, "repo-url", c.RepoURL, "Custom test framework repository (defaults to the pinned framework)")
	fs.StringVar(&c.RepoRef, "repo-ref", c.RepoRef, "Branch or tag of the framework repository")
	fs.StringVar(&c.TenantID, "tenant-id", c.TenantID, "Entra tenant id for user provisioning")
	fs.StringVar(&c.DataverseURL, "dataverse-url", c.DataverseURL, "Dataverse environment URL for user provisioning")
	fs.StringVar(&c.ClientID, "client-id", c.ClientID, "App registration client id for user provisioning")
	fs.StringVar(&c.ClientSecret, "client-secret", c.ClientSecret, "App registration client secret for user provisioning")
	fs.StringVar(&c.RoleName, "role", c.RoleName, "Security role to assign to the test user")
	fs.StringVar(&c.TeamName, "team", c.TeamName, "Team to add the test user to")
	fs.StringVar(&c.BusinessUnitName, "business-unit", c.BusinessUnitName, "Business unit to move the test user into")

	configFile := fs.String("config", "", "Optional YAML file with run configuration")
	showHelp := fs.BoolP("help", "h", false, "Show help message")
	showVersion := fs.Bool("version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showHelp {
		fmt.Printf("Playwright for Power Platform task\n\nUsage:\n")
		fs.PrintDefaults()
		os.Exit(0)
	}

	if *showVersion {
		info := version.GetVersionInfo()
		fmt.Printf("playwright-powerplatform version %s\n", info["version"])
		fmt.Printf("  go version: %s\n", info["goVersion"])
		fmt.Printf("  platform:   %s\n", info["platform"])
		if info["gitCommit"] != "" {
			fmt.Printf("  git commit: %s (%s)\n", info["gitCommit"], info["gitTreeState"])
		}
		os.Exit(0)
	}

	if *configFile != "" {
		if err := c.loadFile(*configFile); err != nil {
			return err
		}
	}

	c.loadFromEnv()

	return c.Validate()
}

func (c *RunConfiguration) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *RunConfiguration) loadFromEnv() {
	overlay := []struct {
		env string
		dst *string
	}{
		{"PP_TEST_SOURCE", &c.TestSource},
		{"PP_BROWSER", &c.Browser},
		{"PP_TRACE", &c.TraceMode},
		{"PP_OUTPUT_PATH", &c.OutputPath},
		{"PP_WORK_DIR", &c.WorkDir},
		{"PP_LOG_LEVEL", &c.LogLevel},
		{"PP_APP_URL", &c.AppURL},
		{"PP_APP_NAME", &c.AppName},
		{"PP_USERNAME", &c.Username},
		{"PP_PASSWORD", &c.Password},
		{"PP_REPO_URL", &c.RepoURL},
		{"PP_REPO_REF", &c.RepoRef},
		{"PP_TENANT_ID", &c.TenantID},
		{"PP_DATAVERSE_URL", &c.DataverseURL},
		{"PP_CLIENT_ID", &c.ClientID},
		{"PP_CLIENT_SECRET", &c.ClientSecret},
		{"PP_ROLE", &c.RoleName},
		{"PP_TEAM", &c.TeamName},
		{"PP_BUSINESS_UNIT", &c.BusinessUnitName},
	}
	for _, o := range overlay {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

func (c *RunConfiguration) Validate() error {
	if c.TestSource == "" {
		return fmt.Errorf("test source is required")
	}
	if c.OutputPath == "" {
		return fmt.Errorf("output path is required")
	}
	if !validBrowsers[c.Browser] {
		return fmt.Errorf("invalid browser: %s (must be chromium, firefox, or webkit)", c.Browser)
	}
	if !validTraceModes[c.TraceMode] {
		return fmt.Errorf("invalid trace mode: %s (must be off, on, retain-on-failure, or on-first-retry)", c.TraceMode)
	}
	return nil
}

// ProvisioningConfigured reports whether the advanced user-provisioning phase
// activates. All five inputs must be present; there is no partial activation.
func (c *RunConfiguration) ProvisioningConfigured() bool {
	return c.TenantID != "" &&
		c.DataverseURL != "" &&
		c.ClientID != "" &&
		c.ClientSecret != "" &&
		c.Username != ""
}

// SubprocessEnv is the configuration the test framework reads, keyed by the
// variable names it expects. Secrets go into the subprocess environment only,
// never to disk. Empty values are omitted.
func (c *RunConfiguration) SubprocessEnv() map[string]string {
	env := map[string]string{}
	set := func(key, value string) {
		if value != "" {
			env[key] = value
		}
	}
	set("APP_URL", c.AppURL)
	set("APP_NAME", c.AppName)
	set("O365_USERNAME", c.Username)
	set("O365_PASSWORD", c.Password)
	set("TENANT_ID", c.TenantID)
	set("DYNAMICS_URL", c.DataverseURL)
	set("CLIENT_ID", c.ClientID)
	set("ROLE", c.RoleName)
	set("TEAM", c.TeamName)
	set("BUSINESS_UNIT", c.BusinessUnitName)
	return env
}

// Redacted returns a loggable view of the configuration with secrets masked.
func (c *RunConfiguration) Redacted() map[string]string {
	return map[string]string{
		"testSource":   c.TestSource,
		"browser":      c.Browser,
		"trace":        c.TraceMode,
		"outputPath":   c.OutputPath,
		"appUrl":       c.AppURL,
		"appName":      c.AppName,
		"username":     c.Username,
		"password":     logger.Mask(c.Password),
		"repoUrl":      c.RepoURL,
		"repoRef":      c.RepoRef,
		"tenantId":     c.TenantID,
		"dataverseUrl": c.DataverseURL,
		"clientId":     c.ClientID,
		"clientSecret": logger.Mask(c.ClientSecret),
		"role":         c.RoleName,
		"team":         c.TeamName,
		"businessUnit": c.BusinessUnitName,
	}
}
