// Package logger provides leveled, component-scoped logging for the library.
//
// Every subsystem logs through its own component (app, cipher, extract,
// innertube, patch, download, client); components other than app are silent
// by default and can be enabled individually, so turning on tracing for the
// cipher pipeline does not flood the output with download chatter.
//
// Configuration can come from code (Config), or from the environment via
// EnvironmentConfig: TUBEGET_LOG_LEVEL, TUBEGET_LOG_FORMAT,
// TUBEGET_LOG_OUTPUT, TUBEGET_LOG_TIMESTAMP and TUBEGET_LOG_COMPONENTS.
package logger
