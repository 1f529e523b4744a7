package config

import "time"

type Config struct {
	ConfigVersion int               `yaml:"configVersion"`
	Server        ServerConfig      `yaml:"server"`
	Upstreams     []Upstream        `yaml:"upstreams"`
	Routes        []Route           `yaml:"routes"`
	Policies      map[string]Policy `yaml:"policies"`
	Classifier    ClassifierConfig  `yaml:"classifier"`
	Logging       LoggingConfig     `yaml:"logging"`
	Metrics       MetricsConfig     `yaml:"metrics"`

	baseDir string `yaml:"-"`
}

type ServerConfig struct {
	Listen    string    `yaml:"listen"`
	APIPrefix string    `yaml:"apiPrefix"`
	TLS       TLSConfig `yaml:"tls"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

type Upstream struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type Route struct {
	Match    RouteMatch `yaml:"match"`
	Upstream string     `yaml:"upstream"`
	Policy   string     `yaml:"policy"`
}

type RouteMatch struct {
	Host       string `yaml:"host"`
	PathPrefix string `yaml:"pathPrefix"`
}

type Policy struct {
	Mode      string           `yaml:"mode"`
	Limits    Limits           `yaml:"limits"`
	Fields    FieldsConfig     `yaml:"fields"`
	RateLimit RateLimitConfig  `yaml:"rateLimit"`
	Actions   PolicyActionSpec `yaml:"actions"`
}

type Limits struct {
	MaxBodyBytes   int64         `yaml:"maxBodyBytes"`
	MaxHeaderBytes int64         `yaml:"maxHeaderBytes"`
	Timeout        time.Duration `yaml:"timeout"`
}

// FieldsConfig selects which parts of a request are classified.
type FieldsConfig struct {
	Query     bool     `yaml:"query"`
	Form      bool     `yaml:"form"`
	JSON      bool     `yaml:"json"`
	Headers   []string `yaml:"headers"`
	MaxFields int      `yaml:"maxFields"`
}

type RateLimitConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Key        string  `yaml:"key"`
	RPS        float64 `yaml:"rps"`
	Burst      int     `yaml:"burst"`
	StatusCode int     `yaml:"statusCode"`
}

type PolicyActionSpec struct {
	BlockStatusCode       int    `yaml:"blockStatusCode"`
	BlockBody             string `yaml:"blockBody"`
	UnavailableStatusCode int    `yaml:"unavailableStatusCode"`
}

type ClassifierConfig struct {
	Normalize      NormalizeConfig  `yaml:"normalize"`
	Scorer         ScorerConfig     `yaml:"scorer"`
	Signatures     []Rule           `yaml:"signatures"`
	SignaturesFile string           `yaml:"signaturesFile"`
	Allowlist      []AllowlistEntry `yaml:"allowlist"`
	Workers        int              `yaml:"workers"`
}

type NormalizeConfig struct {
	FoldCompatibility bool `yaml:"foldCompatibility"`
}

type ScorerConfig struct {
	Type      string        `yaml:"type"`
	ModelPath string        `yaml:"modelPath"`
	Threshold float64       `yaml:"threshold"`
	Timeout   time.Duration `yaml:"timeout"`
	ONNX      ONNXConfig    `yaml:"onnx"`
}

type ONNXConfig struct {
	SharedLibrary  string         `yaml:"sharedLibrary"`
	InputName      string         `yaml:"inputName"`
	OutputName     string         `yaml:"outputName"`
	Sessions       int            `yaml:"sessions"`
	MaliciousIndex int            `yaml:"maliciousIndex"`
	Features       FeaturesConfig `yaml:"features"`
}

type FeaturesConfig struct {
	NgramMin  int  `yaml:"ngramMin" json:"ngramMin"`
	NgramMax  int  `yaml:"ngramMax" json:"ngramMax"`
	Buckets   int  `yaml:"buckets" json:"buckets"`
	Lowercase bool `yaml:"lowercase" json:"lowercase"`
}

type Rule struct {
	ID            string    `yaml:"id"`
	Category      string    `yaml:"category"`
	Stage         string    `yaml:"stage"`
	CaseSensitive bool      `yaml:"caseSensitive"`
	Match         RuleMatch `yaml:"match"`
}

type RuleMatch struct {
	Type         string   `yaml:"type"`
	Pattern      string   `yaml:"pattern"`
	Patterns     []string `yaml:"patterns"`
	PatternsFile string   `yaml:"patternsFile"`
}

// AllowlistEntry is either an anchored regex or a closed keyword list.
type AllowlistEntry struct {
	ID       string   `yaml:"id"`
	Pattern  string   `yaml:"pattern"`
	Keywords []string `yaml:"keywords"`
	Exclude  string   `yaml:"exclude"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	DecisionLog string `yaml:"decisionLog"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

const (
	ModeEnforce = "enforce"
	ModeShadow  = "shadow"
)

const (
	ScorerLinear = "linear"
	ScorerONNX   = "onnx"
)

const (
	StageRaw        = "raw"
	StageNormalized = "normalized"
)

const (
	defaultAPIPrefix     = "/_xssguard"
	defaultScorerTimeout = 2 * time.Second
	defaultThreshold     = 0.5
	defaultWorkers       = 8
)

func (c *Config) BaseDir() string {
	return c.baseDir
}

func (c *Config) ResolvePath(path string) string {
	return c.resolvePath(path)
}
