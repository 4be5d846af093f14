package ali

// Command represents a discrete application operation with its specific
// configuration. Commands are produced by Parse and dispatched by Main.
type Command interface {
	// Name returns the command identifier used for routing.
	Name() string
}

// RunCommand starts the HTTP server.
type RunCommand struct{}

func (c *RunCommand) Name() string { return "run" }

// ImportCommand fetches and parses a TSV file without starting the server,
// printing the resulting report. URL may be empty to use the configured
// import base.
type ImportCommand struct {
	URL      string
	Filename string
}

func (c *ImportCommand) Name() string { return "import" }
