package schema

type (
	// Config is the top level service configuration loaded from YAML.
	Config struct {
		// DSN is the storage connection string, "driver://uri".
		DSN string `yaml:"dsn" json:"dsn"`
		// Listen is the HTTP listen address.
		Listen string `yaml:"listen" json:"listen,optional"`
		// Debug switches the logger to development output.
		Debug bool `yaml:"debug" json:"debug,optional"`
		// OnPropertyDelete controls what happens to views that still
		// reference a deleted property: "strip" removes the references,
		// "reject" refuses the deletion.
		OnPropertyDelete string `yaml:"onPropertyDelete" json:"onPropertyDelete,optional"`
		// MaxBulkSize bounds the number of record ids accepted by a
		// single bulk operation.
		MaxBulkSize int `yaml:"maxBulkSize" json:"maxBulkSize,optional"`
		// DefaultWorkspace and DefaultActor are used when the upstream
		// auth middleware is absent (development mode).
		DefaultWorkspace string `yaml:"defaultWorkspace" json:"defaultWorkspace,optional"`
		DefaultActor     string `yaml:"defaultActor" json:"defaultActor,optional"`
	}
)

// Property delete policies.
const (
	DeletePolicyStrip  = "strip"
	DeletePolicyReject = "reject"
)

// Normalize fills configuration defaults in place.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = ":3002"
	}
	if c.OnPropertyDelete == "" {
		c.OnPropertyDelete = DeletePolicyStrip
	}
	if c.MaxBulkSize <= 0 {
		c.MaxBulkSize = 500
	}
}
