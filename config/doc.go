// Package config loads blockflow configuration.
//
// Configuration is built in layers, each overriding the previous one field
// by field:
//
//  1. built-in defaults (Default)
//  2. files added with Loader.AddLayer, JSON or YAML chosen by extension
//  3. BLOCKFLOW_* environment variables
//
// Validate runs last and reports every problem at once as an invalid-class
// error wrapping errors.ErrInvalidConfig.
//
//	loader := config.NewLoader()
//	loader.AddLayer("blockflow.yaml")
//	loader.AddLayer("robot-7.json")
//	cfg, err := loader.Load()
//
// A YAML layer looks like:
//
//	log:
//	  level: debug
//	device:
//	  transport: http
//	  url: http://192.168.4.1
//	  timeout: 2s
//	  retry:
//	    max_retries: 3
//	interpreter:
//	  loop_delay: 50ms
//
// Durations accept Go duration strings, a day suffix ("14d") or a bare
// number of nanoseconds.
//
// # Environment
//
//	BLOCKFLOW_LOG_LEVEL, BLOCKFLOW_LOG_FORMAT
//	BLOCKFLOW_NATS_URLS (comma separated), BLOCKFLOW_NATS_USERNAME,
//	BLOCKFLOW_NATS_PASSWORD, BLOCKFLOW_NATS_TOKEN, BLOCKFLOW_NATS_TIMEOUT
//	BLOCKFLOW_DEVICE_TRANSPORT, BLOCKFLOW_DEVICE_URL, BLOCKFLOW_DEVICE_SUBJECT,
//	BLOCKFLOW_DEVICE_TIMEOUT
//	BLOCKFLOW_LOOP_DELAY
//	BLOCKFLOW_METRICS_ENABLED, BLOCKFLOW_METRICS_PORT
//	BLOCKFLOW_STORE_BUCKET, BLOCKFLOW_RUNLOG_ENABLED
//
// Empty variables are ignored. Unparsable values fail the load.
//
// # File Safety
//
// Layer files must be regular files with a .json, .yaml or .yml extension,
// at most 1MB. Relative paths may not leave the working directory and JSON
// nesting is capped.
package config
