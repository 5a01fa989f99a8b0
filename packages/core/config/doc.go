// Package config loads .envexrc files.
//
// A config file holds named profiles. Each profile may inherit from other
// profiles, import .env files, set a working directory and carry env and
// expose definitions:
//
//	profiles:
//	  base:
//	    env:
//	      APP_ENV: development
//	  dev:
//	    profile: base
//	    imports: [.env.local]
//	    cwd: ./app
//	    env:
//	      PORT: "$(get-port)"
//	    expose:
//	      PORT:
//	        regex: "localhost:([0-9]+)"
//
// JSON (with comments and trailing commas) and YAML are accepted. Every
// document is checked against the schema returned by Schema before use.
package config
