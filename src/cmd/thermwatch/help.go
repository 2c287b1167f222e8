// FILE: thermwatch/src/cmd/thermwatch/help.go
package main

import (
	"fmt"
	"os"
)

const helpText = `thermwatch: sensor stream anomaly detection and alerting.

Usage:
  thermwatch [options] [--section.key=value ...]

Application Control:
  -c, --config <path>      Path to configuration file (default: thermwatch.toml)
      --env-file <path>    Dotenv file to export before loading config (default: .env)
  -h, --help               Display this help message and exit
  -v, --version            Display version information and exit
  -q, --quiet              Suppress all console output, including errors

Common Overrides:
      --source.path=<file>                 CSV stream to tail
      --detect.temperature_threshold=<n>   Alert above this temperature
      --store.type=<auto|none|rest|postgres>
      --metrics.enabled=true               Serve /metrics and /status
      --logging.level=<debug|info|warn|error>

Configuration Sources (Precedence: CLI > Env > File > Defaults):
  - CLI overrides use the TOML key path, e.g. --annotate.workers=8
  - Environment variables use the THERMWATCH_ prefix, e.g. THERMWATCH_STORE_URL
  - GEMINI_API_KEY, SUPABASE_URL, SUPABASE_KEY and SUPABASE_DB_URI are honoured
    when the matching setting is empty

Exit Codes:
  0  clean shutdown
  1  configuration or startup error
  2  input file not found
  3  drain deadline exceeded, in-flight alerts dropped

Examples:
  # Tail a local file and keep alerts in the fallback log only
  thermwatch --source.path=./data/stream.csv --store.type=none

  # Start with a config file and debug logging
  thermwatch -c /etc/thermwatch/prod.toml --logging.level=debug
`

func displayHelp() {
	fmt.Fprint(os.Stdout, helpText)
}
