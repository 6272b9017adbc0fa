// Package config provides the configuration of toxguard: classifier
// selection, scan engine tuning, page loading and report preferences.
//
// Values are layered. NewConfig supplies defaults, a .toxguard YAML file
// overrides them through File.ApplyTo, the settings saved in the data
// directory override the threshold and keywords, and command line flags
// override everything. Watcher reloads the file while `toxguard serve`
// runs so threshold and keyword edits reach the running classifier.
package config
