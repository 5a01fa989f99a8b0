package config

import "os"

// DefaultConfigFile is the --rc-file default.
const DefaultConfigFile = "./" + ConfigBaseName

// StarterFile is the file written by envex init.
const StarterFile = ConfigBaseName + ".yaml"

// DefaultProfile picks the profile for npm scripts: "npm:<script>" when
// npm_lifecycle_event is set, empty otherwise.
func DefaultProfile() string {
	if event := os.Getenv("npm_lifecycle_event"); event != "" {
		return "npm:" + event
	}
	return ""
}

// StarterConfig returns the contents written by envex init.
func StarterConfig() string {
	return `# envex configuration
profiles:
  base:
    env:
      APP_ENV: development
      # Optional: only defined when the parent environment sets it.
      "LOG_LEVEL?": null

  dev:
    profile: base
    # imports: .env.local
    env:
      PORT: "$(sh -c 'echo 3000')"
      URL: "http://localhost:${PORT}/"
      # "!" replaces a value inherited from the parent environment.
      "PATH!": "${PATH}:./node_modules/.bin"
    expose:
      URL:
        regex: "(https?://[^\\s]+)"

  client:
    env:
      API_URL: "$(envex -p dev get URL)"
`
}
