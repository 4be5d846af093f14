package ali

import (
	"flag"
	"fmt"
)

// Parse parses command line arguments and returns the command to execute
// and the application configuration. Flags cover server settings; database
// connection details come from the environment with local-development
// defaults.
func Parse(args []string) (Command, *Config, error) {
	flagSet := flag.NewFlagSet("ali", flag.ContinueOnError)

	var (
		port       = flagSet.String("port", "8080", "Server port")
		importURL  = flagSet.String("import-url", "", "Override base URL for TSV imports")
		importFile = flagSet.String("import-file", "", "Filename for the import command")
	)

	if err := flagSet.Parse(args); err != nil {
		return nil, nil, err
	}

	remainingArgs := flagSet.Args()
	if len(remainingArgs) == 0 {
		return nil, nil, fmt.Errorf(`subcommand required

Usage: ali [flags] <command>

Commands:
  run       Start the ali server
  import    Fetch and parse a TSV file, print the report, and exit

Examples:
  ali run
  ali -port=8090 run
  ali -import-file=sentences.tsv import
  ali -import-url=https://corpora.example.org -import-file=sentences.tsv import`)
	}

	var cmd Command
	switch remainingArgs[0] {
	case "run":
		cmd = &RunCommand{}
	case "import":
		if *importFile == "" {
			return nil, nil, fmt.Errorf("import requires -import-file")
		}
		cmd = &ImportCommand{
			URL:      *importURL,
			Filename: *importFile,
		}
	default:
		return nil, nil, fmt.Errorf("unknown command: %s\n\nValid commands: run, import", remainingArgs[0])
	}

	config := &Config{
		ServerPort: *port,
	}
	config.SurrealDBURL = getEnv("SURREALDB_URL", "ws://localhost:8000/rpc")
	config.SurrealDBNS = getEnv("SURREALDB_NS", "ali")
	config.SurrealDBDB = getEnv("SURREALDB_DB", "ali")
	config.SurrealDBUser = getEnv("SURREALDB_USER", "root")
	config.SurrealDBPass = getEnv("SURREALDB_PASS", "root")
	config.JWTSecret = getEnv("ALI_JWT_SECRET", "ali-dev-secret")
	config.ImportBaseURL = getEnv("ALI_IMPORT_URL", "http://localhost:8080/corpora")
	if *importURL != "" {
		config.ImportBaseURL = *importURL
	}

	return cmd, config, nil
}
